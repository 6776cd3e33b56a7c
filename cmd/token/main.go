package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/longtails/freemasons/internal/config"
	"github.com/longtails/freemasons/internal/utils"
	"github.com/longtails/freemasons/pkg/logger"
)

// token issues a bearer token for the tracker API, signed with the configured secret.
func main() {
	operator := flag.String("operator", "", "operator name recorded in audit entries")
	role := flag.String("role", utils.RoleViewer, "token role: operator or viewer")
	hours := flag.Int("hours", 0, "validity in hours (defaults to jwt.expire_hour)")
	flag.Parse()

	if *operator == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	utils.SetJWTSecret(cfg.JWT.Secret)

	expire := *hours
	if expire <= 0 {
		expire = cfg.JWT.ExpireHour
	}

	token, err := utils.GenerateToken(*operator, *role, expire)
	if err != nil {
		logger.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
