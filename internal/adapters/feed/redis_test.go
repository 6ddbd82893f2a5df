package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type recordingSink struct {
	accept bool
	got    []model.RawChange
}

func (s *recordingSink) Enqueue(_ context.Context, c model.RawChange) bool {
	if !s.accept {
		return false
	}
	s.got = append(s.got, c)
	return true
}

func TestDecode(t *testing.T) {
	Convey("Given change payloads", t, func() {
		Convey("A full payload decodes as is", func() {
			c, err := Decode("changes:bets", []byte(`{"table":"bets","type":"INSERT","record":{"id":"b1","amount":750},"commit_timestamp":"2026-03-01T12:00:00Z"}`))
			So(err, ShouldBeNil)
			So(c.Table, ShouldEqual, "bets")
			So(c.Type, ShouldEqual, model.ChangeInsert)
			So(c.RowID(), ShouldEqual, "b1")
			So(c.CommitTimestamp.IsZero(), ShouldBeFalse)
		})

		Convey("A payload without a table takes it from the channel", func() {
			c, err := Decode("changes:teams", []byte(`{"type":"UPDATE","record":{"id":"t1"},"old_record":{"id":"t1"}}`))
			So(err, ShouldBeNil)
			So(c.Table, ShouldEqual, "teams")
		})

		Convey("A payload without a table on a foreign channel is rejected", func() {
			_, err := Decode("other", []byte(`{"type":"INSERT","record":{}}`))
			So(errors.Is(err, ErrMissingTable), ShouldBeTrue)
		})

		Convey("A payload without a type is rejected", func() {
			_, err := Decode("changes:bets", []byte(`{"record":{"id":"b1"}}`))
			So(errors.Is(err, ErrMissingType), ShouldBeTrue)
		})

		Convey("Malformed JSON is rejected", func() {
			_, err := Decode("changes:bets", []byte(`{not json`))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSubscriberHandle(t *testing.T) {
	Convey("Given a subscriber with a sink", t, func() {
		sink := &recordingSink{accept: true}
		s := NewSubscriber(nil, "", sink)
		ctx := context.Background()

		So(s.pattern, ShouldEqual, DefaultPattern)

		Convey("Valid messages reach the sink", func() {
			s.handle(ctx, "changes:bets", `{"type":"INSERT","record":{"id":"b1"}}`)
			So(sink.got, ShouldHaveLength, 1)
			So(sink.got[0].Table, ShouldEqual, "bets")
		})

		Convey("Invalid messages are skipped", func() {
			s.handle(ctx, "changes:bets", `garbage`)
			So(sink.got, ShouldBeEmpty)
		})

		Convey("A full sink drops the change without panicking", func() {
			sink.accept = false
			So(func() { s.handle(ctx, "changes:bets", `{"type":"INSERT","record":{"id":"b1"}}`) }, ShouldNotPanic)
			So(sink.got, ShouldBeEmpty)
		})
	})
}

func TestChannel(t *testing.T) {
	Convey("Channels are prefixed by table", t, func() {
		So(Channel("markets"), ShouldEqual, "changes:markets")
	})
}

func TestPublishWithoutTable(t *testing.T) {
	Convey("Publishing a change without a table fails before touching redis", t, func() {
		p := NewPublisher(nil)
		err := p.Publish(context.Background(), model.RawChange{Type: model.ChangeInsert})
		So(errors.Is(err, ErrMissingTable), ShouldBeTrue)
	})
}
