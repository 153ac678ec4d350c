package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/pkg/config"
)

func snapshotConfig() config.InvestConfig {
	return config.InvestConfig{
		PieName:        "autoinvest",
		WeeklyAmount:   decimal.RequireFromString("1250"),
		Period:         time.Hour,
		MasterCurrency: "EUR",
		Timezone:       time.UTC,
	}
}

func snapshotPie() *contracts.Pie {
	return &contracts.Pie{
		Name: "autoinvest",
		Slices: []contracts.PieSlice{
			{Ticker: "MSFT_US_EQ", Weight: 0.4},
			{Ticker: "AAPL_US_EQ", Weight: 0.6},
		},
	}
}

func TestBuildState_Deterministic(t *testing.T) {
	a := BuildState("live", snapshotConfig(), snapshotPie())
	b := BuildState("live", snapshotConfig(), snapshotPie())

	assert.True(t, statesEqual(a, a))
	assert.True(t, statesEqual(a, b))
	assert.True(t, statesEqual(b, a))
}

func TestBuildState_CompositionIgnoresSliceOrder(t *testing.T) {
	shuffled := snapshotPie()
	shuffled.Slices[0], shuffled.Slices[1] = shuffled.Slices[1], shuffled.Slices[0]

	assert.True(t, statesEqual(
		BuildState("live", snapshotConfig(), snapshotPie()),
		BuildState("live", snapshotConfig(), shuffled),
	))
}

func TestBuildState_AnyFieldChangeBreaksEquality(t *testing.T) {
	base := BuildState("live", snapshotConfig(), snapshotPie())

	budgetChanged := snapshotConfig()
	budgetChanged.WeeklyAmount = decimal.RequireFromString("1300")
	assert.False(t, statesEqual(base, BuildState("live", budgetChanged, snapshotPie())))

	periodChanged := snapshotConfig()
	periodChanged.Period = 2 * time.Hour
	assert.False(t, statesEqual(base, BuildState("live", periodChanged, snapshotPie())))

	currencyChanged := snapshotConfig()
	currencyChanged.MasterCurrency = "USD"
	assert.False(t, statesEqual(base, BuildState("live", currencyChanged, snapshotPie())))

	assert.False(t, statesEqual(base, BuildState("demo", snapshotConfig(), snapshotPie())))

	weightChanged := snapshotPie()
	weightChanged.Slices[0].Weight = 0.5
	assert.False(t, statesEqual(base, BuildState("live", snapshotConfig(), weightChanged)))

	renamed := snapshotPie()
	renamed.Name = "other"
	assert.False(t, statesEqual(base, BuildState("live", snapshotConfig(), renamed)))
}

func TestStatesEqual_LengthMismatch(t *testing.T) {
	a := BuildState("live", snapshotConfig(), snapshotPie())
	assert.False(t, statesEqual(a, a[:len(a)-1]))
	assert.False(t, statesEqual(a, nil))
}
