package currency

import (
	"encoding/json"
	"fmt"
	"net/http"

	circuitbreaker "github.com/emspay/ipn-service/internal/infrastructure/circuit-breaker"
	"github.com/emspay/ipn-service/pkg/errs"
	"github.com/emspay/ipn-service/pkg/httpclient"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// Lookup maps the gateway's numeric ISO 4217 currency code to the textual
// code stored on payments.
type Lookup interface {
	TextCodeFor(numericCode string) (string, error)
}

// StaticLookup resolves from a built-in ISO 4217 table, covering the
// currencies the gateway settles in.
type StaticLookup struct {
	codes map[string]string
}

func NewStaticLookup() *StaticLookup {
	return &StaticLookup{
		codes: map[string]string{
			"036": "AUD",
			"124": "CAD",
			"156": "CNY",
			"203": "CZK",
			"208": "DKK",
			"348": "HUF",
			"392": "JPY",
			"578": "NOK",
			"752": "SEK",
			"756": "CHF",
			"826": "GBP",
			"840": "USD",
			"978": "EUR",
			"985": "PLN",
		},
	}
}

func (l *StaticLookup) TextCodeFor(numericCode string) (string, error) {
	code, ok := l.codes[numericCode]
	if !ok {
		return "", fmt.Errorf("%w: %s", errs.ErrUnknownCurrency, numericCode)
	}

	return code, nil
}

// HTTPLookup resolves codes from the rates service, shielded by a circuit
// breaker so a flapping lookup doesn't stall notification processing.
type HTTPLookup struct {
	host string
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewHTTPLookup(host string) *HTTPLookup {
	return &HTTPLookup{
		host: host,
		cb:   circuitbreaker.CreateCircuitBreaker("currency-lookup"),
	}
}

type currencyResponse struct {
	Data struct {
		NumericCode string `json:"numeric_code"`
		TextCode    string `json:"text_code"`
	} `json:"data"`
}

func (l *HTTPLookup) TextCodeFor(numericCode string) (string, error) {
	body, err := l.cb.Execute(func() ([]byte, error) {
		statusCode, respBody, err := httpclient.SendRequest(httpclient.HttpRequest{
			URL:    fmt.Sprintf("%s/api/v1/currencies/%s", l.host, numericCode),
			Method: "GET",
			Headers: map[string]string{
				"Accept": "application/json",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("error calling rates service: %v", err)
		}

		if statusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", errs.ErrUnknownCurrency, numericCode)
		}

		if statusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", errs.ErrRatesService, statusCode)
		}

		return respBody, nil
	})
	if err != nil {
		log.Error().Err(err).Str("component", "TextCodeFor").Msg("")
		return "", err
	}

	var resp currencyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("error unmarshalling rates service response: %v", err)
	}

	return resp.Data.TextCode, nil
}
