package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/config"
	"github.com/kalambet/vinroute/internal/itinerary"
	"github.com/kalambet/vinroute/internal/trip"
)

// --- plan ---

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a wine-trail itinerary",
	Long: `Plan a wine-trail itinerary using the running server.

Examples:
  vinroute plan --vibe relaxed --wine red --wine sparkling --group couple --stops 3 --from Sacramento
  vinroute plan --vibe adventurous --wine zinfandel --group friends --stops 5 --from Reno \
      --start 2026-05-01 --end 2026-05-03 --occasion birthday`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := tripRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Planning a %s trip from %s...", req.Vibe, req.OriginCity)
		resp, err := client.post(cmd.Context(), "/api/itineraries", req)
		if err != nil {
			return err
		}

		var it itinerary.Itinerary
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}

		if asJSON {
			return writeIndented(os.Stdout, it)
		}
		printItinerary(os.Stdout, it)
		return nil
	},
}

func init() {
	registerPlanFlags(planCmd)
}

func registerPlanFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("vibe", "", "overall feel of the trip (required)")
	f.StringSlice("wine", nil, "wine preference, repeatable (required)")
	f.String("group", "", "group type, e.g. couple, friends (required)")
	f.Int("stops", trip.MinStops, "number of stops (3-5)")
	f.String("from", "", "origin city (required)")
	f.String("start", "", "first visit date, YYYY-MM-DD")
	f.String("end", "", "last visit date, YYYY-MM-DD")
	f.String("occasion", "", "occasion, e.g. anniversary")
	f.String("requests", "", "special requests")
	f.String("dislikes", "", "things to avoid")
	f.Bool("json", false, "print the raw itinerary JSON")
}

// tripRequestFromFlags builds the request body. Field validation is left to
// the server so the CLI reports exactly what the API rejects.
func tripRequestFromFlags(cmd *cobra.Command) (trip.Request, error) {
	f := cmd.Flags()
	vibe, _ := f.GetString("vibe")
	wines, _ := f.GetStringSlice("wine")
	group, _ := f.GetString("group")
	stops, _ := f.GetInt("stops")
	from, _ := f.GetString("from")

	var missing []string
	if vibe == "" {
		missing = append(missing, "--vibe")
	}
	if len(wines) == 0 {
		missing = append(missing, "--wine")
	}
	if group == "" {
		missing = append(missing, "--group")
	}
	if from == "" {
		missing = append(missing, "--from")
	}
	if len(missing) > 0 {
		return trip.Request{}, fmt.Errorf("%s required", strings.Join(missing, ", "))
	}

	req := trip.Request{
		Vibe:            vibe,
		WinePreferences: wines,
		GroupType:       group,
		StopCount:       json.RawMessage(strconv.Itoa(stops)),
		OriginCity:      from,
	}
	req.VisitDateStart, _ = f.GetString("start")
	req.VisitDateEnd, _ = f.GetString("end")
	req.Occasion, _ = f.GetString("occasion")
	req.SpecialRequests, _ = f.GetString("requests")
	req.Dislikes, _ = f.GetString("dislikes")
	return req, nil
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <public-id>",
	Short: "Show a saved itinerary by its share id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/itineraries/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var it itinerary.Itinerary
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}
		if asJSON {
			return writeIndented(os.Stdout, it)
		}
		printItinerary(os.Stdout, it)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "print the raw itinerary JSON")
}

// --- venues ---

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Browse or import catalog venues",
}

var venuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog venues",
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/api/venues"
		if tag != "" {
			path += "?tag=" + url.QueryEscape(tag)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var venues []catalog.Venue
		if err := decodeJSON(resp, &venues); err != nil {
			return err
		}
		if len(venues) == 0 {
			fmt.Println("No venues found.")
			return nil
		}
		printVenues(os.Stdout, venues)
		return nil
	},
}

var venuesImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Upsert venues from a JSON array (requires server.admin_token)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		var venues []catalog.Venue
		if err := json.Unmarshal(data, &venues); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		if len(venues) == 0 {
			printWarning("%s contains no venues", args[0])
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Importing %d venues...", len(venues))
		failures := importVenues(cmd.Context(), client, venues)
		if failures > 0 {
			return fmt.Errorf("%d of %d venues failed to import", failures, len(venues))
		}
		printSuccess("Imported %d venues", len(venues))
		return nil
	},
}

func init() {
	venuesListCmd.Flags().String("tag", "", "only list venues with this tag")
	venuesCmd.AddCommand(venuesListCmd)
	venuesCmd.AddCommand(venuesImportCmd)
}

// importVenues posts each venue and returns how many were rejected. One bad
// record does not stop the rest.
func importVenues(ctx context.Context, client *apiClient, venues []catalog.Venue) int {
	failures := 0
	for _, v := range venues {
		resp, err := client.post(ctx, "/api/venues", v)
		if err == nil {
			var saved catalog.Venue
			err = decodeJSON(resp, &saved)
		}
		if err != nil {
			printError("venue %q: %v", v.ID, err)
			failures++
		}
	}
	return failures
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

// --- rendering ---

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
