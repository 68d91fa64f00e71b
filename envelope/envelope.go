// Package envelope wraps ledger events in the wire protocol's CloudEvents
// envelope (spec.md §6): id, ts, issuer and type map onto the
// CloudEvents-native id/time/source/type attributes, and v, subj, corr,
// caus and seq onto the tapv/tapsubj/tapcorr/tapcaus/tapseq extensions.
// The kind, meta and sig fields and the event's sourceIdem are not carried.
//
// Grounded on the teacher's observer_cloudevents.go: a thin NewCloudEvent
// constructor over github.com/cloudevents/sdk-go/v2, and a
// generateEventID helper trying uuid.NewV7 before falling back to v4 for
// time-ordered ids.
package envelope

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/tapid"
)

// SpecVersion is the envelope schema version ("v" field), independent of
// the CloudEvents spec version carried in the CloudEvents envelope itself.
const SpecVersion = "1"

const sourcePrefix = "urn:tap:issuer:"

// New wraps event as a CloudEvents Event. issuer identifies the federation
// member that committed the event; corr and caus are optional
// correlation/causation ids threaded from the triggering command.
func New(event ledger.Event, issuer string, corr, caus tapid.IdempotencyKey) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(generateEventID())
	ce.SetSource(sourcePrefix + issuer)
	ce.SetType(string(event.Type))
	ce.SetTime(event.Ts)
	ce.SetSpecVersion(cloudevents.VersionV1)

	ce.SetExtension("tapv", SpecVersion)
	ce.SetExtension("tapsubj", string(event.Resource))
	if corr != "" {
		ce.SetExtension("tapcorr", string(corr))
	}
	if caus != "" {
		ce.SetExtension("tapcaus", string(caus))
	}
	ce.SetExtension("tapseq", int64(event.Seq))

	if err := ce.SetData(cloudevents.ApplicationJSON, event.Payload); err != nil {
		return cloudevents.Event{}, fmt.Errorf("envelope: set data: %w", err)
	}
	return ce, nil
}

// generateEventID mints a time-ordered envelope id, falling back to a
// random v4 uuid if v7 generation fails.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Validate delegates to the CloudEvents SDK's structural validation.
func Validate(ctx context.Context, ce cloudevents.Event) error {
	if err := ce.Validate(); err != nil {
		return fmt.Errorf("envelope: validation failed: %w", err)
	}
	return nil
}
