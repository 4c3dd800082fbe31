package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Simulator posts a random-walk price per category to the write API at a
// fixed interval. It is a demo load source; it exercises the whole pipeline
// (persist, cache, broker, fan-out) through the public endpoint.
type Simulator struct {
	logger     *zap.Logger
	client     HTTPClient
	serverURL  string
	categories []string
	interval   time.Duration
	rand       Rand
	clock      Clock
	prices     map[string]decimal.Decimal
}

type observationBody struct {
	Category  string    `json:"category"`
	Price     string    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

func New(logger *zap.Logger, client HTTPClient, serverURL string, categories []string, interval time.Duration, rnd Rand, clock Clock) *Simulator {
	prices := make(map[string]decimal.Decimal, len(categories))
	for _, c := range categories {
		// Seed each walk somewhere between 100 and 5000
		prices[c] = decimal.NewFromInt(int64(100 + rnd.Intn(4900)))
	}
	return &Simulator{
		logger:     logger,
		client:     client,
		serverURL:  serverURL,
		categories: categories,
		interval:   interval,
		rand:       rnd,
		clock:      clock,
		prices:     prices,
	}
}

func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("Simulator Started",
		zap.String("server", s.serverURL), zap.Strings("categories", s.categories))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			category := s.categories[s.rand.Intn(len(s.categories))]
			price := s.nextPrice(category)

			if err := s.post(ctx, category, price); err != nil {
				s.logger.Error("POST failed", zap.String("category", category), zap.Error(err))
			} else {
				s.logger.Debug("Posted observation", zap.String("category", category), zap.String("price", price))
			}

			s.clock.Sleep(s.interval)
		}
	}
}

// nextPrice moves the category's walk by up to ±0.5% and keeps it positive.
func (s *Simulator) nextPrice(category string) string {
	current := s.prices[category]
	fluctuation := (s.rand.Float64() - 0.5) / 100
	next := current.Mul(decimal.NewFromFloat(1 + fluctuation)).Round(2)
	if next.Sign() <= 0 {
		next = current
	}
	s.prices[category] = next
	return next.StringFixed(2)
}

func (s *Simulator) post(ctx context.Context, category, price string) error {
	body, err := json.Marshal(observationBody{
		Category:  category,
		Price:     price,
		Timestamp: s.clock.Now(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/market-data", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
