// Package tradelog delivers trade events to pluggable sinks. The
// engine calls the sink once per placed, cancelled and filled order
// and once per grid reset; what a sink does with the record is its
// own business.
package tradelog

import (
	"go.uber.org/zap"

	"binance-grid-engine-go/internal/models"
)

// Sink receives one record per trade event. Implementations must be
// safe for concurrent use by multiple monitor loops and must not
// block the caller for long.
type Sink interface {
	Record(rec models.TradeRecord)
}

// ZapSink writes each record as one structured log line.
type ZapSink struct {
	log *zap.SugaredLogger
}

func NewZapSink(log *zap.SugaredLogger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Record(rec models.TradeRecord) {
	s.log.Infow("trade event",
		"event", rec.Event,
		"client", rec.ClientID,
		"symbol", rec.Symbol,
		"side", rec.Side,
		"price", rec.Price,
		"quantity", rec.Quantity,
		"level", rec.LevelIndex,
		"order_id", rec.OrderID,
		"reason", rec.Reason,
	)
}

// TradeAppender is the slice of the repository the RepoSink writes to.
type TradeAppender interface {
	AppendTrade(rec *models.TradeRecord) error
}

// RepoSink persists each record through the repository. Write failures
// are logged and dropped; the trade log is an audit trail, not a
// ledger the engine depends on.
type RepoSink struct {
	repo TradeAppender
	log  *zap.SugaredLogger
}

func NewRepoSink(repo TradeAppender, log *zap.SugaredLogger) *RepoSink {
	return &RepoSink{repo: repo, log: log}
}

func (s *RepoSink) Record(rec models.TradeRecord) {
	if err := s.repo.AppendTrade(&rec); err != nil {
		s.log.Errorw("trade record persistence failed",
			"client", rec.ClientID, "symbol", rec.Symbol, "error", err)
	}
}

// MultiSink fans a record out to several sinks.
type MultiSink []Sink

func (m MultiSink) Record(rec models.TradeRecord) {
	for _, s := range m {
		s.Record(rec)
	}
}
