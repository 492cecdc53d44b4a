package sqlsession_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aretw0/sqlsession/pkg/adapters/memory"
	"github.com/aretw0/sqlsession/pkg/session"
)

// Example_provider runs three request cycles against the same session using
// the in-memory table in place of a MySQL server.
func Example_provider() {
	provider, err := session.NewProvider(memory.NewTable(),
		session.WithMaxLifetime(30*time.Minute),
		session.WithGCProbability(0, 1),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := provider.Run(ctx, "visitor-1", func(_ context.Context, data []byte) ([]byte, error) {
			return append(data, '*'), nil
		})
		if err != nil {
			log.Fatal(err)
		}
	}

	data, _, err := provider.Peek(ctx, "visitor-1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(data))
	// Output: ***
}

// Example_store drives the host lifecycle by hand.
func Example_store() {
	table := memory.NewTable()
	ctx := context.Background()

	conn, err := table.Conn(ctx)
	if err != nil {
		log.Fatal(err)
	}
	st, err := session.NewStore(conn, session.WithLocking(session.Advisory()))
	if err != nil {
		log.Fatal(err)
	}

	if err := st.Open(ctx, "", "SID"); err != nil {
		log.Fatal(err)
	}
	data, err := st.Read(ctx, "abc")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("first read: %q\n", data)
	if err := st.Write(ctx, "abc", []byte("user=42")); err != nil {
		log.Fatal(err)
	}
	if err := st.Close(ctx); err != nil {
		log.Fatal(err)
	}

	rec, _ := table.Get("abc")
	fmt.Printf("stored: %q\n", rec.Data)
	// Output:
	// first read: ""
	// stored: "user=42"
}
