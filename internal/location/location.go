// Package location resolves where the user is. Every failure wraps
// ErrUnavailable.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
)

// ErrUnavailable is wrapped by every Locate failure.
var ErrUnavailable = errors.New("location unavailable")

// Provider resolves the user's location.
type Provider interface {
	Locate(ctx context.Context) (model.Location, error)
}

// Static returns a fixed, configured location.
type Static struct {
	Loc model.Location
}

func (s Static) Locate(_ context.Context) (model.Location, error) {
	if s.Loc.Latitude == 0 && s.Loc.Longitude == 0 {
		return model.Location{}, fmt.Errorf("%w: no coordinates configured", ErrUnavailable)
	}
	if err := validate(s.Loc); err != nil {
		return model.Location{}, err
	}
	return s.Loc, nil
}

// IPLookup geolocates the host's public IP through an ip-api compatible
// JSON endpoint.
type IPLookup struct {
	url    string
	client *http.Client
}

// NewIPLookup builds an IPLookup against url (e.g. "http://ip-api.com/json/").
func NewIPLookup(url string) *IPLookup {
	return &IPLookup{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
}

func (p *IPLookup) Locate(ctx context.Context) (model.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return model.Location{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return model.Location{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Location{}, fmt.Errorf("%w: lookup status %s", ErrUnavailable, resp.Status)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return model.Location{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if body.Status != "" && body.Status != "success" {
		return model.Location{}, fmt.Errorf("%w: lookup failed: %s", ErrUnavailable, body.Message)
	}

	loc := model.Location{Latitude: body.Lat, Longitude: body.Lon, City: body.City}
	if err := validate(loc); err != nil {
		return model.Location{}, err
	}
	appLog.Info("location resolved", "city", loc.City, "lat", loc.Latitude, "lon", loc.Longitude)
	return loc, nil
}

func validate(l model.Location) error {
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: coordinates out of range (%f, %f)", ErrUnavailable, l.Latitude, l.Longitude)
	}
	return nil
}
