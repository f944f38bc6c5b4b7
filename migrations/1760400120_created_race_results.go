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
		races, err := app.FindCollectionByNameOrId("races")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("race_results")
		collection.ListRule = types.Pointer("")
		collection.ViewRule = types.Pointer("")

		collection.Fields.Add(
			&core.RelationField{
				Name:          "race",
				CollectionId:  races.Id,
				Required:      true,
				MaxSelect:     1,
				CascadeDelete: true,
			},
			&core.RelationField{
				Name:         "player",
				CollectionId: users.Id,
				Required:     true,
				MaxSelect:    1,
			},
			&core.BoolField{
				Name: "finished",
			},
			&core.NumberField{
				Name:    "time_racing_ms",
				OnlyInt: true,
				Min:     types.Pointer(0.0),
			},
			&core.NumberField{
				Name:    "place",
				OnlyInt: true,
				Min:     types.Pointer(1.0),
			},
			&core.NumberField{
				Name: "average_speed",
				Min:  types.Pointer(0.0),
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
		)

		// one result per player and one player per place
		collection.AddIndex("idx_race_results_race_player", true, "`race`, `player`", "")
		collection.AddIndex("idx_race_results_race_place", true, "`race`, `place`", "")
		collection.AddIndex("idx_race_results_player", false, "`player`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("race_results")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
