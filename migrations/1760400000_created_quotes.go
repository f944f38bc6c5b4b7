package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("quotes")

		// quotes are public read-only; writes go through the seed-quotes command
		collection.ListRule = types.Pointer("")
		collection.ViewRule = types.Pointer("")

		collection.Fields.Add(
			&core.TextField{
				Name:     "quote",
				Required: true,
				Max:      2000,
			},
			&core.TextField{
				Name: "author",
				Max:  255,
			},
			&core.JSONField{
				Name:    "categories",
				MaxSize: 4096,
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_quotes_quote", true, "`quote`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("quotes")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
