package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/iris/pkg/models"
)

var (
	identifyEmail string
	identifyPhone string
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Reconcile one observation against the store and print the cluster",
	Example: `  iris identify --email doc@hillvalley.edu --phone 123456
  STORE_DRIVER=memory iris identify --email marty@hillvalley.edu`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a := newApp(cfg, logger)
		if err := a.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := a.Stop(ctx); err != nil {
				logger.WithError(err).Warn("Failed to stop dependencies")
			}
		}()

		var req models.IdentifyRequest
		if cmd.Flags().Changed("email") {
			req.Email = &identifyEmail
		}
		if cmd.Flags().Changed("phone") {
			req.PhoneNumber = &identifyPhone
		}

		resp, err := a.resolver.Identify(ctx, req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	identifyCmd.Flags().StringVar(&identifyEmail, "email", "", "email address of the observation")
	identifyCmd.Flags().StringVar(&identifyPhone, "phone", "", "phone number of the observation")
}
