package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/killpoints/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given an Entry struct", t, func() {
		entry := types.Entry{Rank: 1, EntityID: 90000001, Points: 120.5}

		Convey("When encoded as JSON", func() {
			data, err := json.Marshal(entry)

			Convey("Then it should use snake case keys", func() {
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, `{"rank":1,"entity_id":90000001,"points":120.5}`)
			})
		})

		Convey("When creating an entry with zero values", func() {
			entry := types.Entry{}

			Convey("Then it should have default values", func() {
				So(entry.Rank, ShouldEqual, 0)
				So(entry.EntityID, ShouldEqual, 0)
				So(entry.Points, ShouldEqual, 0.0)
			})
		})
	})
}

func TestBreakdown(t *testing.T) {
	Convey("Given a Breakdown", t, func() {
		b := types.Breakdown{RepresentativeID: 7, Kills: []int64{7, 8}, Points: 15}

		Convey("Then it should encode its kills in order", func() {
			data, err := json.Marshal(b)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, `{"representative_id":7,"kills":[7,8],"points":15}`)
		})
	})
}
