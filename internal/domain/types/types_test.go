package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/hackcast/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given a board entry", t, func() {
		entry := types.Entry{Rank: 1, HackathonID: "h-1", HackathonName: "Spring Jam", EffectiveScore: 45, Active: true}

		Convey("When it is encoded for the API", func() {
			raw, err := json.Marshal(entry)

			Convey("Then it uses snake_case keys", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldContainSubstring, `"hackathon_id":"h-1"`)
				So(string(raw), ShouldContainSubstring, `"effective_score":45`)
				So(string(raw), ShouldContainSubstring, `"active":true`)
			})
		})
	})

	Convey("Given an empty current line", t, func() {
		var line types.CurrentLine

		Convey("Then it encodes empty strings rather than nulls", func() {
			raw, err := json.Marshal(line)
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, `{"text":"","speaker":"","priority":""}`)
		})
	})
}
