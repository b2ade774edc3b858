package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/utils"
	"github.com/smarttransit/seat-reservation-engine/pkg/jwt"
)

func main() {
	userID := flag.String("user", "", "user id placed in the token")
	role := flag.String("role", string(models.RoleCustomer), "customer, agent, admin or system")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	newSecret := flag.Bool("new-secret", false, "print a fresh JWT_SECRET and exit")
	flag.Parse()

	if *newSecret {
		secret, err := utils.GenerateSecret(32)
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Printf("JWT_SECRET=%s\n", secret)
		fmt.Println("Keep this secret safe and never commit it to version control.")
		return
	}

	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set (use -new-secret to generate one)")
	}
	if *userID == "" {
		log.Fatal("-user is required")
	}
	if !models.Role(*role).IsValid() {
		log.Fatalf("Unknown role %q", *role)
	}

	service := jwt.NewService(secret, *ttl)
	token, err := service.GenerateAccessToken(*userID, *role)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Token for %s (%s), expires %s\n", *userID, *role,
		time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println(token)
}
