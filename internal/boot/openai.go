package boot

import (
	"errors"
	log "log/slog"
	"os"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxwork/internal/config"
	"voxwork/internal/proxy"
)

var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")

// OpenAI builds a client from OPENAI_API_KEY, optionally routed through
// a SOCKS proxy.
func OpenAI(cfg config.OpenAI) (openai.Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return openai.Client{}, ErrNoAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}

	if cfg.Proxy != "" {
		httpClient, err := proxy.NewSocksClient(cfg.Proxy)
		if err != nil {
			return openai.Client{}, err
		}
		opts = append(opts, option.WithHTTPClient(httpClient))
		log.Debug("Using socks proxy", "proxy", cfg.Proxy)
	}

	return openai.NewClient(opts...), nil
}
