package t212

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wire types for the Trading212 JSON APIs. Converted to contracts types
// at the package boundary; nothing outside this package sees them.

type timeEvent struct {
	Date time.Time `json:"date"`
	Type string    `json:"type"`
}

type workingSchedule struct {
	ID         int64       `json:"id"`
	TimeEvents []timeEvent `json:"timeEvents"`
}

type exchange struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	WorkingSchedules []workingSchedule `json:"workingSchedules"`
}

type instrument struct {
	Ticker            string `json:"ticker"`
	Type              string `json:"type"`
	WorkingScheduleID int64  `json:"workingScheduleId"`
	ISIN              string `json:"isin"`
	CurrencyCode      string `json:"currencyCode"`
	Name              string `json:"name"`
	ShortName         string `json:"shortName"`
}

type pieListEntry struct {
	ID int64 `json:"id"`
}

type pieInstrument struct {
	Ticker        string  `json:"ticker"`
	ExpectedShare float64 `json:"expectedShare"`
	CurrentShare  float64 `json:"currentShare"`
}

type pieSettings struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type pie struct {
	Instruments []pieInstrument `json:"instruments"`
	Settings    pieSettings     `json:"settings"`
}

// apiError is the error envelope the web trading API attaches to
// failed calls. A zero Code means success.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Context struct {
		Type string `json:"type"`
	} `json:"context"`
}

type conversionResponse struct {
	Value decimal.Decimal `json:"value"`
}

type summaryOrder struct {
	Code         string          `json:"code"`
	Value        decimal.Decimal `json:"value"`
	CurrencyCode string          `json:"currencyCode"`
	Created      time.Time       `json:"created"`
}

type summaryResponse struct {
	apiError
	ValueOrders struct {
		Items []summaryOrder `json:"items"`
	} `json:"valueOrders"`
}
