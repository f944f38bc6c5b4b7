package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		quotes, err := app.FindCollectionByNameOrId("quotes")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("races")

		// lifecycle changes are owned by the race coordinator, clients only read
		collection.ListRule = types.Pointer("")
		collection.ViewRule = types.Pointer("")

		collection.Fields.Add(
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"waiting", "counting_down", "running", "finished"},
			},
			&core.RelationField{
				Name:         "creator",
				CollectionId: users.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "quote",
				CollectionId: quotes.Id,
				MaxSelect:    1,
			},
			&core.DateField{
				Name: "start_at",
			},
			&core.JSONField{
				Name:    "participants",
				MaxSize: 65536,
			},
			&core.BoolField{
				Name: "private",
			},
			&core.TextField{
				Name:   "passcode_hash",
				Hidden: true,
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

		collection.AddIndex("idx_races_status", false, "`status`, `created`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("races")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
