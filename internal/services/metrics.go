package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// coinMoved sums coins moved through the ledger by reason.
	coinMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_ledger_coins_total",
			Help: "Coins moved through the ledger, by reason and direction.",
		},
		[]string{"reason", "direction"},
	)

	// bestAnswerSelections counts selection attempts by outcome (won|conflict|rejected).
	bestAnswerSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_ledger_best_answer_selections_total",
			Help: "Best-answer selection attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// dailyClaims counts daily bonus claims by outcome (awarded|already_claimed).
	dailyClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_ledger_daily_claims_total",
			Help: "Daily bonus claims by outcome.",
		},
		[]string{"outcome"},
	)

	// threadsRefunded counts stakes returned to owners, by cause (delete|expiry).
	threadsRefunded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_ledger_stake_refunds_total",
			Help: "Stakes refunded to thread owners, by cause.",
		},
		[]string{"cause"},
	)

	// retriesTotal counts transactions re-run after a transient store conflict.
	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coin_ledger_tx_retries_total",
			Help: "Transactions retried after a transient conflict.",
		},
	)
)

func init() {
	prometheus.MustRegister(coinMoved, bestAnswerSelections, dailyClaims, threadsRefunded, retriesTotal)
}
