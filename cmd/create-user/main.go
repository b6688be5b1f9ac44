package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"law_flow_notify/config"
	"law_flow_notify/db"
	"law_flow_notify/models"
	"law_flow_notify/services"
)

func main() {
	role := flag.String("role", models.RoleClient, "account role: admin, lawyer or client")
	name := flag.String("name", "", "full name (prompted when empty)")
	email := flag.String("email", "", "email address (prompted when empty)")
	specialization := flag.String("specialization", "", "lawyer specialization")
	company := flag.String("company", "", "client company")
	phone := flag.String("phone", "", "client phone")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := db.Initialize(db.Options{
		Path:        cfg.DBPath,
		TursoURL:    cfg.TursoDatabaseURL,
		TursoToken:  cfg.TursoAuthToken,
		Environment: cfg.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New User ===")
	fmt.Println()

	if *name == "" {
		*name = prompt(reader, "Name: ")
	}
	if *email == "" {
		*email = prompt(reader, "Email: ")
	}
	// read as a plain line; pipe it in to keep it out of the terminal
	password := prompt(reader, "Password: ")

	created, err := services.CreateDirectoryUser(context.Background(), db.DB, services.NewUserInput{
		Name:           *name,
		Email:          *email,
		Password:       password,
		Role:           *role,
		Phone:          *phone,
		Company:        *company,
		Specialization: *specialization,
	})
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Println()
	fmt.Println("✓ User created successfully!")
	fmt.Printf("  ID: %s\n", created.User.ID)
	fmt.Printf("  Name: %s\n", created.User.Name)
	fmt.Printf("  Email: %s\n", created.User.Email)
	fmt.Printf("  Role: %s\n", created.User.Role)
	if created.ProfileID != "" {
		fmt.Printf("  Profile ID (%s): %s\n", created.User.Role, created.ProfileID)
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	value, _ := reader.ReadString('\n')
	return strings.TrimSpace(value)
}
