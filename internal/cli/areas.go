package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mr1hm/go-shelter-alerts/internal/config"
	"github.com/mr1hm/go-shelter-alerts/internal/models"
	"github.com/spf13/cobra"
)

func AreasCmd() *cobra.Command {
	var server, filter string
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "List areas known to the server with their migun time",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				server = cfg.Client.ServerURL
			}
			areas, err := fetchAreas(cmd.Context(), server)
			if err != nil {
				return err
			}
			for _, a := range areas {
				if filter != "" && !strings.Contains(a.Name, filter) {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", a.Name, a.MigunTime)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Server base URL (default from WATCH_SERVER_URL)")
	cmd.Flags().StringVar(&filter, "filter", "", "Only list areas containing this text")
	return cmd
}

func fetchAreas(ctx context.Context, server string) ([]models.Area, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/api/areas", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch areas: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var areas []models.Area
	if err := json.NewDecoder(resp.Body).Decode(&areas); err != nil {
		return nil, fmt.Errorf("failed to decode areas: %w", err)
	}
	return areas, nil
}
