// Package supervisor запускает долгоживущие сервисы под suture с перезапуском при сбоях.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Tree корневой супервизор с двумя слоями: фоновые задачи и транспорт.
type Tree struct {
	root       *suture.Supervisor
	background *suture.Supervisor
	transport  *suture.Supervisor
}

// New создаёт дерево. События супервизора пишутся в logger.
func New(name string, logger zerolog.Logger) *Tree {
	spec := suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	}
	rootSpec := spec
	rootSpec.EventHook = eventHook(logger)

	root := suture.New(name, rootSpec)
	background := suture.New("background", spec)
	transport := suture.New("transport", spec)
	root.Add(background)
	root.Add(transport)
	return &Tree{root: root, background: background, transport: transport}
}

// AddBackground добавляет фоновый сервис (обновление справочников, очистка сессий).
func (t *Tree) AddBackground(svc suture.Service) suture.ServiceToken {
	return t.background.Add(svc)
}

// AddTransport добавляет сервис приёма запросов (поллер, HTTP).
func (t *Tree) AddTransport(svc suture.Service) suture.ServiceToken {
	return t.transport.Add(svc)
}

// Serve блокируется до отмены контекста.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func eventHook(logger zerolog.Logger) suture.EventHook {
	return func(ev suture.Event) {
		entry := logger.Warn()
		if ev.Type() == suture.EventTypeResume {
			entry = logger.Info()
		}
		entry.Fields(ev.Map()).Msg("supervisor: " + ev.String())
	}
}
