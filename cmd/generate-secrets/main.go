package main

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/internal/utils"
	"github.com/sawaari/driveshare-backend/pkg/jwt"
	"github.com/spf13/pflag"
)

func main() {
	secretFlag := pflag.String("secret", "", "sign dev tokens with this secret instead of a fresh one")
	issuer := pflag.String("issuer", "sawaari-identity", "token issuer (must match JWT_ISSUER)")
	ttl := pflag.Duration("ttl", 24*time.Hour, "dev token lifetime")
	gender := pflag.String("gender", "female", "gender claim on the dev rider token")
	pflag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for DriveShare")
	fmt.Println("===========================================")
	fmt.Println()

	secret := *secretFlag
	if secret == "" {
		var err error
		secret, err = utils.GenerateJWTSecret()
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Println("Add this to your .env file:")
		fmt.Println()
		fmt.Printf("JWT_SECRET=%s\n", secret)
		fmt.Println()
	}

	// Development tokens, one per role, for exercising the API locally
	jwtService := jwt.NewService(secret, *issuer, *ttl)
	for _, role := range []string{models.RoleRider, models.RoleDriver, models.RoleAdmin} {
		g := ""
		if role == models.RoleRider {
			g = *gender
		}
		userID := uuid.New()
		token, err := jwtService.GenerateAccessToken(userID, "dev-"+role, role, g)
		if err != nil {
			log.Fatalf("Failed to sign %s token: %v", role, err)
		}
		fmt.Printf("# %s %s\n%s\n\n", role, userID, token)
	}

	fmt.Println("Keep secrets out of version control.")
	fmt.Println("===========================================")
}
