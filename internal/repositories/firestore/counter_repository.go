package firestore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	countersCollection = "counters"
	// InvoiceCounterID is the counter document behind invoice numbers.
	InvoiceCounterID = "invoices"
)

// counterDocument holds the last value handed out. It only advances inside the transaction of the
// record that consumes the value.
type counterDocument struct {
	Last      int64     `firestore:"last"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// readNextCounterValue reads ref inside tx and returns last+1, treating a missing document as zero.
// All transactional reads must happen before writeCounterValue.
func readNextCounterValue(tx *firestore.Transaction, ref *firestore.DocumentRef) (int64, error) {
	snap, err := tx.Get(ref)
	switch status.Code(err) {
	case codes.OK:
	case codes.NotFound:
		return 1, nil
	default:
		return 0, err
	}
	var doc counterDocument
	if err := snap.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("decode counter %s: %w", ref.ID, err)
	}
	return doc.Last + 1, nil
}

func writeCounterValue(tx *firestore.Transaction, ref *firestore.DocumentRef, value int64, now time.Time) error {
	return tx.Set(ref, counterDocument{Last: value, UpdatedAt: now}, firestore.MergeAll)
}
