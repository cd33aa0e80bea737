package directory

import (
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/mlvd/internal/domain"
)

// The cache holds the relay slice, not the raw API document.

func encode(d domain.Directory) ([]byte, error) {
	return json.Marshal(d.Relays())
}

func decode(body []byte) (domain.Directory, error) {
	var relays []domain.Relay
	if err := json.Unmarshal(body, &relays); err != nil {
		return domain.Directory{}, fmt.Errorf("decode cached relays: %w", err)
	}
	d, err := domain.NewDirectory(relays)
	if err != nil {
		return domain.Directory{}, fmt.Errorf("decode cached relays: %w", err)
	}
	return d, nil
}
