package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/rxsync/internal/config"
	"github.com/marcus/rxsync/internal/dateparse"
	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
	"github.com/marcus/rxsync/internal/output"
	"github.com/spf13/cobra"
)

var expiredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

// stockAlert is a drug at or below its low-stock threshold.
type stockAlert struct {
	LocalKey  int64   `json:"id"`
	Name      string  `json:"name"`
	Stock     float64 `json:"stock"`
	Threshold float64 `json:"threshold"`
}

// expiryAlert is a batch with stock left that expires before the horizon.
type expiryAlert struct {
	LocalKey  int64     `json:"id"`
	DrugID    int64     `json:"drugId"`
	LotNumber string    `json:"lotNumber"`
	Expiry    time.Time `json:"expiry"`
	Quantity  float64   `json:"quantity"`
	Expired   bool      `json:"expired"`
}

type alertReport struct {
	LowStock []stockAlert  `json:"lowStock"`
	Expiring []expiryAlert `json:"expiring"`
	Until    time.Time     `json:"until"`
}

// collectAlerts scans drugs and batches. A drug's own lowStock field wins
// over the configured default.
func collectAlerts(tx *db.Tx, settings config.AlertConfig, now, until time.Time) (alertReport, error) {
	report := alertReport{Until: until}

	drugs, err := tx.ListRecords(models.EntityDrugs, -1)
	if err != nil {
		return report, err
	}
	for _, d := range drugs {
		stock, ok := number(d.Data["totalStock"])
		if !ok {
			continue
		}
		threshold := float64(settings.LowStock)
		if own, ok := number(d.Data["lowStock"]); ok && own > 0 {
			threshold = own
		}
		if stock <= threshold {
			name, _ := d.Data["name"].(string)
			report.LowStock = append(report.LowStock, stockAlert{LocalKey: d.LocalKey, Name: name, Stock: stock, Threshold: threshold})
		}
	}

	batches, err := tx.ListRecords(models.EntityDrugBatches, -1)
	if err != nil {
		return report, err
	}
	for _, b := range batches {
		qty, _ := number(b.Data["quantityInStock"])
		if qty <= 0 {
			continue
		}
		expiry, ok := dateparse.ParseRecordDate(b.Data["expiryDate"])
		if !ok || !expiry.Before(until) {
			continue
		}
		drugID, _ := number(b.Data["drugId"])
		lot, _ := b.Data["lotNumber"].(string)
		report.Expiring = append(report.Expiring, expiryAlert{
			LocalKey:  b.LocalKey,
			DrugID:    int64(drugID),
			LotNumber: lot,
			Expiry:    expiry,
			Quantity:  qty,
			Expired:   expiry.Before(now),
		})
	}
	sort.Slice(report.Expiring, func(i, j int) bool {
		return report.Expiring[i].Expiry.Before(report.Expiring[j].Expiry)
	})
	return report, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show low-stock drugs and batches nearing expiry",
	Long: `Lists drugs whose total stock is at or below their threshold and batches
with stock left that expire before the horizon.

The horizon defaults to the configured alerts.expiry_days and accepts
dates like 2026-06-30, +30d, +2w, +3m or next-month.`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()
		cfg, err := config.Load(baseDir)
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}
		settings := cfg.AlertSettings()

		now := time.Now()
		untilStr, _ := cmd.Flags().GetString("until")
		if untilStr == "" {
			untilStr = fmt.Sprintf("+%dd", settings.ExpiryDays)
		}
		until, err := dateparse.ParseDay(untilStr, now)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var report alertReport
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			report, err = collectAlerts(tx, settings, now, until)
			return err
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(report)
		}
		printAlerts(report)
		return nil
	},
}

func printAlerts(report alertReport) {
	if len(report.LowStock) == 0 && len(report.Expiring) == 0 {
		output.Success("no stock alerts")
		return
	}
	if len(report.LowStock) > 0 {
		fmt.Print(output.SectionHeader(fmt.Sprintf("Low stock (%d)", len(report.LowStock))))
		for _, a := range report.LowStock {
			fmt.Printf("  #%-5d %-30s %g left (threshold %g)\n", a.LocalKey, a.Name, a.Stock, a.Threshold)
		}
	}
	if len(report.Expiring) > 0 {
		fmt.Print(output.SectionHeader(fmt.Sprintf("Expiring before %s (%d)", report.Until.Format(dateparse.DayLayout), len(report.Expiring))))
		for _, a := range report.Expiring {
			line := fmt.Sprintf("  batch #%-5d drug #%-5d lot %-12s %s  qty %g",
				a.LocalKey, a.DrugID, a.LotNumber, a.Expiry.Format(dateparse.DayLayout), a.Quantity)
			if a.Expired {
				line = expiredStyle.Render(line + "  EXPIRED")
			}
			fmt.Println(line)
		}
	}
}

func init() {
	alertsCmd.Flags().String("until", "", "Expiry horizon (default: alerts.expiry_days from now)")
	rootCmd.AddCommand(alertsCmd)
}
