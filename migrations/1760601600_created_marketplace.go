package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"smarttrain/internal/store"
)

func init() {
	m.Register(func(app core.App) error {
		return store.CreateSchema(app.DB())
	}, func(app core.App) error {
		return store.DropSchema(app.DB())
	})
}
