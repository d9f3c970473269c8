package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rfqmarket/db"
	"rfqmarket/internal/careers"
	"rfqmarket/internal/contacts"
	"rfqmarket/internal/negotiation"
	"rfqmarket/internal/notify"
	"rfqmarket/internal/orders"
)

// ExpireOffersCmd returns the expire-offers command
func ExpireOffersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-offers",
		Short: "Expire counter offers past their response deadline",
		Long: `Mark pending counter offers whose response_by has passed as expired.

Threads whose rounds are exhausted and have nothing pending are closed as expired.
Both parties are notified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			store := db.NewStorage(e.conn)
			dispatcher := notify.NewDispatcher(notify.NewStoreNotifier(store), notify.NewLogSMSSender(e.log), e.log)
			hiring := careers.NewService(store, contacts.NewAccess(store), dispatcher, e.log)
			svc := negotiation.NewService(store, orders.NewService(store, hiring, dispatcher, e.log), dispatcher, e.log)

			expired, err := svc.ExpireOffers(cmd.Context())
			if err != nil {
				return err
			}
			dispatcher.Wait()

			if len(expired) == 0 {
				fmt.Println("No offers past their deadline.")
				return nil
			}
			threads := 0
			for _, x := range expired {
				line := fmt.Sprintf("  offer %s (thread %s, round %d)", x.OfferID, x.ThreadID, x.RoundNumber)
				if x.ThreadExpired {
					threads++
					line += " " + yellow("thread expired")
				}
				fmt.Println(line)
			}
			fmt.Printf("%s expired %s offers, closed %d threads\n", green("✓"), bold(len(expired)), threads)
			return nil
		},
	}
}
