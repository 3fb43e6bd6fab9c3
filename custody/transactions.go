package custody

import (
	"sort"

	"github.com/AlexZinkM/currency-custody/internal/model"
	"github.com/AlexZinkM/currency-custody/internal/txstate"
)

// GetTransactions lists recorded deposits with filtering, newest first
func (s *Service) GetTransactions(req *model.LogRequest) *model.LogResponse {
	ids := s.store.IDs()

	resultTransactions := make([]model.Transaction, 0, len(ids))
	for _, id := range ids {
		rec, err := txstate.ParseRecord(id)
		if err != nil {
			// ids written by older versions are kept for dedup but not listed
			continue
		}

		// Filter by family
		if req.Family != nil && *req.Family != rec.Family {
			continue
		}

		// Filter by counter-party
		if req.From != nil && *req.From != rec.From {
			continue
		}

		// Filter by dates
		if req.Since != nil && rec.Timestamp.Before(*req.Since) {
			continue
		}
		if req.Until != nil && rec.Timestamp.After(*req.Until) {
			continue
		}

		resultTransactions = append(resultTransactions, model.Transaction{
			ID:         rec.ID,
			Family:     rec.Family,
			BlockIndex: rec.Index,
			From:       rec.From,
			Timestamp:  rec.Timestamp,
		})
	}

	// Sort by time DESC (newest first)
	sort.SliceStable(resultTransactions, func(i, j int) bool {
		return resultTransactions[i].Timestamp.After(resultTransactions[j].Timestamp)
	})

	total := len(resultTransactions)
	if req.Limit != nil && *req.Limit < total {
		resultTransactions = resultTransactions[:*req.Limit]
	}

	return &model.LogResponse{
		Total:        total,
		Transactions: resultTransactions,
	}
}

// GetTransaction returns one recorded deposit
func (s *Service) GetTransaction(id string) (*model.Transaction, bool) {
	if !s.store.TransactionExists(id) {
		return nil, false
	}
	rec, err := txstate.ParseRecord(id)
	if err != nil {
		return &model.Transaction{ID: id}, true
	}
	return &model.Transaction{
		ID:         rec.ID,
		Family:     rec.Family,
		BlockIndex: rec.Index,
		From:       rec.From,
		Timestamp:  rec.Timestamp,
	}, true
}
