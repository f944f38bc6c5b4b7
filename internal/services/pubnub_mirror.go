package services

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"

	"typerace/models"
	"typerace/utils"
)

// PubNubMirror republishes race channel events on PubNub for spectators.
// Calls go through a circuit breaker so an outage does not back up the hub.
type PubNubMirror struct {
	pn      *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubMirror(pn *pubnub.PubNub) *PubNubMirror {
	return &PubNubMirror{
		pn:      pn,
		breaker: utils.NewCircuitBreaker("pubnub-mirror"),
	}
}

func RaceChannel(raceID string) string {
	return "race-" + raceID
}

func (m *PubNubMirror) Publish(ctx context.Context, raceID string, ev models.Event) error {
	return m.breaker.Execute(ctx, func(ctx context.Context) error {
		_, _, err := m.pn.PublishWithContext(ctx).
			Channel(RaceChannel(raceID)).
			Message(ev).
			Meta(map[string]interface{}{"type": ev.EventType()}).
			Execute()
		if err != nil {
			return fmt.Errorf("pubnub publish %s: %w", RaceChannel(raceID), err)
		}
		return nil
	})
}
