package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Synchronize shipments with the remote document store",
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload every local shipment to the remote store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		acct, err := accountID(cmd)
		if err != nil {
			return err
		}
		m, err := services.Migrator()
		if err != nil {
			return err
		}
		res := m.Migrate(ctx, acct)
		if res.Err != nil {
			failure.Println(res.Message)
			return fmt.Errorf("migrate failed: %w", res.Err)
		}
		success.Println(res.Message)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare local and remote shipment counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		acct, err := accountID(cmd)
		if err != nil {
			return err
		}
		m, err := services.Migrator()
		if err != nil {
			return err
		}
		v := m.Verify(ctx, acct)
		if v.Err != nil {
			return fmt.Errorf("verify failed: %w", v.Err)
		}
		fmt.Printf("local: %d\nremote: %d\n", v.LocalCount, v.RemoteCount)
		if !v.IsValid {
			warn.Println(v.Message)
			return nil
		}
		success.Println(v.Message)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push [id]",
	Short: "Upload one shipment (latest when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		acct, err := accountID(cmd)
		if err != nil {
			return err
		}
		m, err := services.Migrator()
		if err != nil {
			return err
		}
		if err := m.Push(ctx, acct, optionalID(args)); err != nil {
			return err
		}
		success.Println("Shipment uploaded")
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Restore every remote shipment into local storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		acct, err := accountID(cmd)
		if err != nil {
			return err
		}
		d, err := services.Downloader()
		if err != nil {
			return err
		}
		res := d.DownloadAll(ctx, acct)
		for _, e := range res.Errors {
			failure.Printf("  %s\n", e)
		}
		if res.Err != nil {
			warn.Println(res.Message)
			return fmt.Errorf("download failed: %w", res.Err)
		}
		success.Println(res.Message)
		logger.Info("Download completed")
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the remote store holds shipments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		acct, err := accountID(cmd)
		if err != nil {
			return err
		}
		d, err := services.Downloader()
		if err != nil {
			return err
		}
		st, err := d.Check(ctx, acct)
		if err != nil {
			return err
		}
		if !st.HasData {
			warn.Println("No remote shipments")
			return nil
		}
		success.Printf("%d remote shipments\n", st.ShipmentCount)
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull <id>",
	Short: "Restore one remote shipment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		acct, err := accountID(cmd)
		if err != nil {
			return err
		}
		d, err := services.Downloader()
		if err != nil {
			return err
		}
		sh, err := d.Pull(ctx, acct, args[0])
		if err != nil {
			return err
		}
		success.Printf("Restored %s  %s\n", sh.ShipmentID, sh.DisplayName())
		return nil
	},
}

func init() {
	remoteCmd.PersistentFlags().String("account", "", "Account e-mail (defaults to account.id)")
	remoteCmd.AddCommand(migrateCmd)
	remoteCmd.AddCommand(verifyCmd)
	remoteCmd.AddCommand(pushCmd)
	remoteCmd.AddCommand(downloadCmd)
	remoteCmd.AddCommand(checkCmd)
	remoteCmd.AddCommand(pullCmd)
}
