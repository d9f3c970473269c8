package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rfqmarket/db"
	"rfqmarket/models"
)

// Fixtures файл для rfqctl seed
type Fixtures struct {
	Profiles []struct {
		ID       string  `yaml:"id"`
		FullName string  `yaml:"fullName"`
		Email    *string `yaml:"email"`
		Phone    *string `yaml:"phone"`
		Tier     *string `yaml:"tier"`
		Location *string `yaml:"location"`
	} `yaml:"profiles"`
	Vendors []struct {
		ID           string   `yaml:"id"`
		BusinessName string   `yaml:"businessName"`
		Email        *string  `yaml:"email"`
		Phone        *string  `yaml:"phone"`
		Status       string   `yaml:"status"`
		Skills       []string `yaml:"skills"`
	} `yaml:"vendors"`
	Listings []struct {
		ID         string  `yaml:"id"`
		EmployerID string  `yaml:"employerId"`
		Title      string  `yaml:"title"`
		Location   *string `yaml:"location"`
		PayMax     string  `yaml:"payMax"`
	} `yaml:"listings"`
	Applications []struct {
		ID          string `yaml:"id"`
		ListingID   string `yaml:"listingId"`
		CandidateID string `yaml:"candidateId"`
		Status      string `yaml:"status"`
	} `yaml:"applications"`
}

// SeedStore методы хранилища для загрузки фикстур
type SeedStore interface {
	CreateProfile(ctx context.Context, p *models.Profile) error
	CreateVendor(ctx context.Context, v *models.Vendor) error
	AddVendorSkills(ctx context.Context, vendorID string, jobTypes ...string) error
	CreateListing(ctx context.Context, l *models.Listing) error
	CreateApplication(ctx context.Context, a *models.Application) error
}

// SeedResult сколько записей загружено
type SeedResult struct {
	Profiles, Vendors, Listings, Applications int
}

func LoadFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return &f, nil
}

// Seed загружает фикстуры; повторный запуск ничего не дублирует
func Seed(ctx context.Context, store SeedStore, f *Fixtures) (*SeedResult, error) {
	res := &SeedResult{}

	for _, p := range f.Profiles {
		if p.ID == "" || p.FullName == "" {
			return nil, fmt.Errorf("profile: id and fullName are required")
		}
		err := store.CreateProfile(ctx, &models.Profile{
			ID: p.ID, FullName: p.FullName, Email: p.Email, Phone: p.Phone, RFQTier: p.Tier, Location: p.Location,
		})
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		res.Profiles++
	}

	for _, v := range f.Vendors {
		if v.ID == "" || v.BusinessName == "" {
			return nil, fmt.Errorf("vendor: id and businessName are required")
		}
		vendor := &models.Vendor{ID: v.ID, BusinessName: v.BusinessName, Email: v.Email, Phone: v.Phone, Status: v.Status}
		if err := store.CreateVendor(ctx, vendor); err != nil {
			return nil, fmt.Errorf("vendor %s: %w", v.ID, err)
		}
		// у вендора всегда есть профиль с тем же id
		err := store.CreateProfile(ctx, &models.Profile{ID: v.ID, FullName: v.BusinessName, Email: v.Email, Phone: v.Phone})
		if err != nil {
			return nil, fmt.Errorf("vendor %s profile: %w", v.ID, err)
		}
		if err := store.AddVendorSkills(ctx, v.ID, v.Skills...); err != nil {
			return nil, fmt.Errorf("vendor %s skills: %w", v.ID, err)
		}
		res.Vendors++
	}

	for _, l := range f.Listings {
		listing := &models.Listing{ID: l.ID, EmployerID: l.EmployerID, Title: l.Title, Location: l.Location}
		if listing.ID == "" {
			listing.ID = uuid.NewString()
		}
		if l.PayMax != "" {
			pay, err := decimal.NewFromString(l.PayMax)
			if err != nil {
				return nil, fmt.Errorf("listing %s: invalid payMax %q", listing.ID, l.PayMax)
			}
			listing.PayMax = decimal.NewNullDecimal(pay)
		}
		if err := store.CreateListing(ctx, listing); err != nil {
			return nil, fmt.Errorf("listing %s: %w", listing.ID, err)
		}
		res.Listings++
	}

	for _, a := range f.Applications {
		app := &models.Application{ID: a.ID, ListingID: a.ListingID, CandidateID: a.CandidateID, Status: a.Status}
		if app.ID == "" {
			app.ID = uuid.NewString()
		}
		if err := store.CreateApplication(ctx, app); err != nil {
			return nil, fmt.Errorf("application %s: %w", app.ID, err)
		}
		res.Applications++
	}
	return res, nil
}

// SeedCmd returns the seed command
func SeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load development fixtures from a YAML file",
		Long: `Load profiles, vendors with skills, listings and applications.

Records are upserted by id, so the same file can be loaded again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open fixtures: %w", err)
			}
			defer fh.Close()

			fixtures, err := LoadFixtures(fh)
			if err != nil {
				return err
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := Seed(cmd.Context(), db.NewStorage(e.conn), fixtures)
			if err != nil {
				return err
			}
			fmt.Printf("%s seeded %d profiles, %d vendors, %d listings, %d applications\n",
				green("✓"), res.Profiles, res.Vendors, res.Listings, res.Applications)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "fixtures.yaml", "Path to the fixtures file")
	return cmd
}
