package model_test

import (
	"encoding/json"
	"testing"
	"time"

	model "github.com/okian/killpoints/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

const esiBody = `{
  "killmail_id": 123456,
  "killmail_time": "2024-05-01T12:30:00Z",
  "solar_system_id": 30000142,
  "victim": {
    "ship_type_id": 587,
    "character_id": 90000001,
    "items": [
      {"item_type_id": 2881, "flag": 27, "quantity_destroyed": 1},
      {"item_type_id": 215, "flag": 5, "quantity_dropped": 400}
    ]
  },
  "attackers": [
    {"character_id": 90000002, "ship_type_id": 11198},
    {"ship_type_id": 34317},
    {"character_id": 90000003}
  ]
}`

func TestKillmailDecoding(t *testing.T) {
	convey.Convey("Given an ESI killmail body", t, func() {
		var km model.Killmail
		err := json.Unmarshal([]byte(esiBody), &km)

		convey.Convey("Then it should decode into the model", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(km.ID, convey.ShouldEqual, 123456)
			convey.So(km.SolarSystemID, convey.ShouldEqual, 30000142)
			convey.So(km.Time.Equal(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)), convey.ShouldBeTrue)
			convey.So(km.Victim.ShipTypeID, convey.ShouldEqual, 587)
			convey.So(len(km.Victim.Items), convey.ShouldEqual, 2)
			convey.So(len(km.Attackers), convey.ShouldEqual, 3)
		})

		convey.Convey("Then optional attacker fields should be nil when absent", func() {
			convey.So(km.Attackers[0].IsPlayer(), convey.ShouldBeTrue)
			convey.So(km.Attackers[0].Is(90000002), convey.ShouldBeTrue)
			convey.So(km.Attackers[1].IsPlayer(), convey.ShouldBeFalse)
			convey.So(km.Attackers[1].Is(90000002), convey.ShouldBeFalse)
			convey.So(km.Attackers[2].ShipTypeID, convey.ShouldBeNil)
		})

		convey.Convey("Then item quantity should sum destroyed and dropped", func() {
			convey.So(km.Victim.Items[0].Quantity(), convey.ShouldEqual, 1)
			convey.So(km.Victim.Items[1].Quantity(), convey.ShouldEqual, 400)
		})
	})
}

func TestKillRef(t *testing.T) {
	convey.Convey("Given kill refs from a zKillboard page", t, func() {
		convey.Convey("Then only refs with a real hash are verified", func() {
			convey.So(model.KillRef{ID: 1, Hash: "abc"}.Verified(), convey.ShouldBeTrue)
			convey.So(model.KillRef{ID: 1, Hash: model.UnverifiedHash}.Verified(), convey.ShouldBeFalse)
			convey.So(model.KillRef{ID: 1}.Verified(), convey.ShouldBeFalse)
		})
	})
}
