package conversation

// Подписи кнопок главного меню.
const (
	LabelSearch       = "🔍 Поиск"
	LabelPopular      = "🌟 Популярное"
	LabelRandom       = "🎲 Случайный фильм"
	LabelPersonal     = "❤️ Персональные рекомендации"
	LabelMostPersonal = "🏆 Самый подходящий фильм"
	LabelRatePopular  = "🎬 Популярные фильмы"
	LabelRateAll      = "🌀 Рандомный фильм"
	LabelAllRated     = "📜 Мои оценки"
	LabelHelp         = "❓ Помощь"
)

// MenuLayout раскладка главного меню по строкам.
var MenuLayout = [][]string{
	{LabelSearch, LabelPopular},
	{LabelRandom, LabelPersonal},
	{LabelMostPersonal, LabelAllRated},
	{LabelRatePopular, LabelRateAll},
	{LabelHelp},
}

// YesNoLayout клавиатура подтверждения просмотра.
var YesNoLayout = [][]string{{"да", "нет"}}

// ScoreLayout клавиатура оценки.
var ScoreLayout = [][]string{
	{"1", "2", "3", "4", "5"},
	{"6", "7", "8", "9", "10"},
}

const (
	msgHelp = `🐾 Добро пожаловать в вашего личного помощника по фильмам! 🎥✨

Вот список доступных команд:

🔍 /search — Найти фильм по названию.
🌟 /popular — Список популярных фильмов.
🎲 /random — Случайный фильм.
❤️ /personal — Персональные рекомендации.
🏆 /mostpersonal — Самый подходящий фильм.
🎬 /ratepopular — Оцените популярный фильм.
🌀 /rateall — Оцените случайный фильм.
📜 /allrated — Посмотрите ваши оценки.

🧡 Спасибо, что пользуетесь ботом! 😊`

	msgUnknown = "Неизвестная команда. Выберите действие в меню или наберите /help."

	msgSearchPrompt = "🔍 Введите название фильма:"
	msgSearchBlank  = "Название не может быть пустым. Введите название фильма:"
	msgSearchCancel = "Поиск отменён: пустой запрос. Попробуйте /search ещё раз."
	msgNotFound     = "Фильмы не найдены."

	msgUnavailable = "Сервис временно недоступен, попробуйте позже."

	msgScorePrompt       = "Как бы вы оценили этот фильм по шкале от 1 до 10?"
	msgDeclined          = "Спасибо! Если хотите, попробуйте другой фильм."
	msgConfirmRetry      = "Пожалуйста, ответьте 'да' или 'нет'."
	msgScoreRange        = "Пожалуйста, введите число от 1 до 10."
	msgScoreUnrecognized = "Неизвестный ответ. Пожалуйста, напишите число от 1 до 10."
	msgScoreSaved        = "Спасибо за вашу оценку! Вы поставили %d баллов."
	msgScoreFailed       = "Не удалось сохранить оценку, попробуйте позже."
)
