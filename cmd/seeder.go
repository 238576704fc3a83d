package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		if clearData {
			for _, table := range []string{"notifications", "payments", "rentals", "equipment", "users"} {
				if _, err := db.Exec("DELETE FROM " + table); err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		users := []struct {
			ID    string
			Email string
			Name  string
		}{
			{"usr_renter_1", "mika@mail.com", "Mika Renter"},
			{"usr_owner_1", "jonas@mail.com", "Jonas Owner"},
		}

		for _, u := range users {
			var exists int
			if err := db.QueryRow("SELECT 1 FROM users WHERE id = $1", u.ID).Scan(&exists); err == nil {
				fmt.Println("user already exists:", u.Email)
				continue
			}
			if _, err := db.Exec(
				"INSERT INTO users (id, email, name, created_at, updated_at) VALUES ($1, $2, $3, now(), now())",
				u.ID, u.Email, u.Name); err != nil {
				log.Fatalf("failed to insert user %s: %v", u.Email, err)
			}
			fmt.Println("Seeded user:", u.Email)
		}

		var exists int
		if err := db.QueryRow("SELECT 1 FROM equipment WHERE id = $1", "eq_camera_1").Scan(&exists); err != nil {
			if _, err := db.Exec(
				"INSERT INTO equipment (id, owner_id, title, created_at, updated_at) VALUES ($1, $2, $3, now(), now())",
				"eq_camera_1", "usr_owner_1", "Sony FX3 Cinema Camera"); err != nil {
				log.Fatalf("failed to insert equipment: %v", err)
			}
			fmt.Println("Seeded equipment: Sony FX3 Cinema Camera")
		}

		if err := db.QueryRow("SELECT 1 FROM rentals WHERE id = $1", "rent_demo_1").Scan(&exists); err != nil {
			if _, err := db.Exec(
				`INSERT INTO rentals (id, equipment_id, renter_id, status, total_amount, payout_status, start_date, end_date, created_at, updated_at)
				 VALUES ($1, $2, $3, 'PENDING', 100.00, 'PENDING', now(), now() + interval '3 days', now(), now())`,
				"rent_demo_1", "eq_camera_1", "usr_renter_1"); err != nil {
				log.Fatalf("failed to insert rental: %v", err)
			}
			fmt.Println("Seeded rental: rent_demo_1")
		}

		fmt.Println("Seeding complete")
	},
}
