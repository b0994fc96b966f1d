package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ride-hail-sim/internal/cli"
)

func main() {
	var (
		userID = flag.String("user-id", "", "ID of the user (subject)")
		role   = flag.String("role", "RIDER", "User role: RIDER | DRIVER | ADMIN")
		secret = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT HMAC secret (HS256), defaults to $JWT_SECRET")
		ttl    = flag.Duration("ttl", 2*time.Hour, "Token lifetime")
	)
	flag.Parse()

	if *userID == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: key --user-id=<id> --role=DRIVER --secret='<secret>' [--ttl=2h]")
		os.Exit(2)
	}

	token, claims, err := cli.GenerateUserToken(*secret, *ttl, *userID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("TOKEN:")
	fmt.Println(token)
	fmt.Println("\nCLAIMS:")
	fmt.Printf("  sub:  %s\n", claims.Subject)
	fmt.Printf("  role: %s\n", claims.Role)
	fmt.Printf("  iat:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Printf("  exp:  %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
