package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jo-hoe/photostamp/internal/backend"
	"github.com/jo-hoe/photostamp/internal/backend/database"
	"github.com/jo-hoe/photostamp/internal/core"
	"github.com/spf13/cobra"
)

func addCmd(opts *globalOptions) *cobra.Command {
	var (
		comment  string
		lat, lng float64
		clientIP string
	)

	cmd := &cobra.Command{
		Use:   "add <photo>",
		Short: "Annotate a photo and store it as a new entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			photo, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read photo: %w", err)
			}

			var latPtr, lngPtr *float64
			if cmd.Flags().Changed("lat") {
				latPtr = &lat
			}
			if cmd.Flags().Changed("lng") {
				lngPtr = &lng
			}

			return withCoreService(opts, func(ctx context.Context, service *core.CoreService) error {
				locator, err := service.LocatorFor(latPtr, lngPtr, clientIP)
				if err != nil {
					return err
				}
				entry, err := service.SaveEntry(ctx, core.SaveRequest{
					Photo:   photo,
					Comment: comment,
					Locator: locator,
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), entry.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "Free-text comment stored with the photo")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude of the capture position")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude of the capture position")
	cmd.Flags().StringVar(&clientIP, "ip", "", "Locate by IP address using the configured geo database")
	cmd.MarkFlagsRequiredTogether("lat", "lng")
	return cmd
}

func listCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoreService(opts, func(ctx context.Context, service *core.CoreService) error {
				entries := service.ListEntries(ctx)
				if asJSON {
					encoder := json.NewEncoder(cmd.OutOrStdout())
					encoder.SetIndent("", "  ")
					return encoder.Encode(entries)
				}
				return printEntries(cmd, entries)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON including the image data URL")
	return cmd
}

func printEntries(cmd *cobra.Command, entries []database.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "No entries stored yet.")
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCAPTURED\tCOORDINATES\tADDRESS\tCOMMENT")
	for _, entry := range entries {
		coordinates := "-"
		if entry.HasCoordinates() {
			coordinates = fmt.Sprintf("%.6f, %.6f", *entry.Lat, *entry.Lng)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.ID,
			entry.CapturedAt,
			coordinates,
			orDash(entry.Address),
			orDash(strings.ReplaceAll(entry.Comment, "\n", " ")))
	}
	return w.Flush()
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func exportCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write the annotated image of an entry to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCoreService(opts, func(ctx context.Context, service *core.CoreService) error {
				data, mime, err := service.EntryImage(ctx, id)
				if err != nil {
					return err
				}

				target := output
				if target == "" {
					extension := ".bin"
					if detected := mimetype.Lookup(mime); detected != nil {
						extension = detected.Extension()
					}
					target = id + extension
				}
				if err := os.WriteFile(target, data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", target, err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), target)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <id> plus the image extension)")
	return cmd
}

func deleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoreService(opts, func(ctx context.Context, service *core.CoreService) error {
				return service.DeleteEntry(ctx, args[0])
			})
		},
	}
}

func clearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoreService(opts, func(ctx context.Context, service *core.CoreService) error {
				return service.ClearEntries(ctx)
			})
		},
	}
}

func serveCmd(opts *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				config.Port = port
			}
			return withCoreServiceConfig(config, func(ctx context.Context, service *core.CoreService) error {
				server := backend.NewEchoServer()
				backend.NewAPIService(service).SetRoutes(server)
				return backend.Serve(ctx, server, config.Port)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides the config file)")
	return cmd
}
