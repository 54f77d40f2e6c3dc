// Command claim_race_drill mechanically exercises invariant 1 (§3.2,
// "at-most-one-claim"): it spawns N concurrent claimants against a single
// Unclaimed conversation row in a fake odatatest store and asserts exactly
// one wins (204/UpdateOK) while the rest lose (412/UpdateConflict).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/basket/shraga/internal/directory"
	"github.com/basket/shraga/internal/directory/odatatest"
)

func main() {
	claimants := flag.Int("claimants", 10, "number of concurrent claimants")
	flag.Parse()

	if *claimants < 2 {
		fmt.Fprintln(os.Stderr, "claimants must be >= 2")
		os.Exit(2)
	}

	ctx := context.Background()

	srv, err := odatatest.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start fake store: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()

	client := directory.New(directory.Config{
		BaseURL: srv.URL(),
		Tokens:  directory.NewStaticTokenSource("drill-token"),
	})
	store := directory.NewStore(client, directory.DefaultTables())

	conv, err := store.CreateInbound(ctx, "drill@example.com", "drill-conversation", "race me")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create inbound row: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("PREPARED_ROW_ID=%s\n", conv.ID)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
		errs      int
	)

	for i := 0; i < *claimants; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := store.ClaimConversation(ctx, conv, fmt.Sprintf("claimant-%d", n))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs++
				fmt.Printf("CLAIMANT_ERROR n=%d error=%v\n", n, err)
			case res == directory.UpdateOK:
				wins++
			case res == directory.UpdateConflict:
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	fmt.Printf("WINS=%d CONFLICTS=%d ERRORS=%d\n", wins, conflicts, errs)

	if wins == 1 && conflicts == *claimants-1 && errs == 0 {
		fmt.Println("VERDICT PASS")
		return
	}
	fmt.Println("VERDICT FAIL — expected exactly one winner and no errors")
	os.Exit(1)
}
