package usecase

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/domain"
)

// decodeDocs turns remote documents into typed values keyed by document id.
// A document that does not decode is replaced by the zero value rather than
// failing the whole slice; the store normalizes it into a usable default.
func decodeDocs[V any](log *zap.Logger, c domain.Collection, docs []domain.RemoteDoc) map[string]V {
	out := make(map[string]V, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			continue
		}
		out[doc.ID] = decodeDoc[V](log, c, doc)
	}
	return out
}

func decodeDoc[V any](log *zap.Logger, c domain.Collection, doc domain.RemoteDoc) V {
	var v V
	if len(doc.Data) == 0 {
		return v
	}
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		log.Warn("coercing malformed remote document to defaults",
			zap.String("collection", string(c)),
			zap.String("id", doc.ID),
			zap.Error(err))
		var zero V
		return zero
	}
	return v
}

// medicationMeta is the remote meta/medication document. The adherence
// history lives in its own collection.
type medicationMeta struct {
	LastProcessedDate string             `json:"lastProcessedDate"`
	TakenToday        map[string]bool    `json:"takenToday"`
	PerfectStreak     domain.StreakState `json:"perfectStreak"`
}

func toMedicationMeta(m domain.MedicationState) medicationMeta {
	m = m.Normalize()
	return medicationMeta{
		LastProcessedDate: m.LastProcessedDate,
		TakenToday:        m.TakenToday,
		PerfectStreak:     m.PerfectStreak,
	}
}

func syncKey(c domain.Collection, id string) string {
	if c == domain.CollectionProfile {
		return string(c)
	}
	return string(c) + "/" + id
}
