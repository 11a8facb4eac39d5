package main

import (
	"fmt"

	"p2p/internal/database"
	"p2p/internal/document"
	"p2p/internal/model"
	"p2p/internal/policy"
	"p2p/internal/repository"
	"p2p/internal/service"

	"github.com/spf13/cobra"
)

var seedUsers = []model.User{
	{Email: "staff@test.com", FirstName: "John", LastName: "Doe", Role: model.RoleStaff},
	{Email: "staff2@test.com", FirstName: "Sarah", LastName: "Miller", Role: model.RoleStaff},
	{Email: "approver1@test.com", FirstName: "Jane", LastName: "Smith", Role: model.RoleApproverLevel1},
	{Email: "approver2@test.com", FirstName: "Bob", LastName: "Johnson", Role: model.RoleApproverLevel2},
	{Email: "finance@test.com", FirstName: "Alice", LastName: "Williams", Role: model.RoleFinance},
}

type seedRequest struct {
	requester string
	dto       service.CreatePurchaseRequestDTO
}

var seedRequests = []seedRequest{
	{"staff@test.com", service.CreatePurchaseRequestDTO{
		Title:       "Office Supplies - Monthly Order",
		Description: "Monthly order for office supplies including paper, pens, and folders.",
		Amount:      "1300.00",
		Items: []service.RequestItemInput{
			{ItemName: "Printer Paper (A4)", Quantity: 20, UnitPrice: "15.00"},
			{ItemName: "Blue Pens", Quantity: 50, UnitPrice: "2.50"},
			{ItemName: "File Folders", Quantity: 100, UnitPrice: "8.75"},
		},
	}},
	{"staff@test.com", service.CreatePurchaseRequestDTO{
		Title:       "Computer Equipment",
		Description: "New laptops for development team",
		Amount:      "4500.00",
		Items:       []service.RequestItemInput{{ItemName: "Dell Laptop i7", Quantity: 3, UnitPrice: "1500.00"}},
	}},
	{"staff2@test.com", service.CreatePurchaseRequestDTO{
		Title:       "Software Licenses",
		Description: "Annual renewal of development tools",
		Amount:      "2800.00",
		Items: []service.RequestItemInput{
			{ItemName: "JetBrains License", Quantity: 5, UnitPrice: "200.00"},
			{ItemName: "Adobe Creative Cloud", Quantity: 3, UnitPrice: "600.00"},
		},
	}},
	{"staff2@test.com", service.CreatePurchaseRequestDTO{
		Title:       "Marketing Materials",
		Description: "Printed brochures and business cards",
		Amount:      "850.00",
		Items: []service.RequestItemInput{
			{ItemName: "Brochures (1000 pcs)", Quantity: 1, UnitPrice: "600.00"},
			{ItemName: "Business Cards (500 pcs)", Quantity: 1, UnitPrice: "250.00"},
		},
	}},
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the test users and sample purchase requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, db, err := connect()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			ctx := cmd.Context()

			users := repository.NewUserRepository(db)
			byEmail := map[string]model.User{}
			for _, u := range seedUsers {
				u := u
				if err := users.EnsureByEmail(ctx, &u); err != nil {
					return fmt.Errorf("seed user %s: %w", u.Email, err)
				}
				byEmail[u.Email] = u
				fmt.Fprintf(cmd.OutOrStdout(), "  user %-20s %s\n", u.Email, u.Role)
			}

			authz, err := policy.New(logger)
			if err != nil {
				return err
			}
			store, err := document.NewLocalStore(cfg.Document.StorageDir)
			if err != nil {
				return err
			}
			requests := service.NewPurchaseRequestService(
				repository.NewTransactionManager(db),
				repository.NewPurchaseRequestRepository(db),
				repository.NewApprovalRepository(db),
				repository.NewPurchaseOrderRepository(db),
				repository.NewAuditRepository(db),
				authz,
				document.NewProcessor(cfg.Document.MaxUploadSize, logger),
				store, nil, logger,
			)

			for _, sr := range seedRequests {
				u := byEmail[sr.requester]
				actor := model.Actor{UserID: u.ID, Role: u.Role}
				_, total, err := requests.List(ctx, actor, service.RequestFilter{Search: sr.dto.Title})
				if err != nil {
					return err
				}
				if total > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "  request exists: %s\n", sr.dto.Title)
					continue
				}
				if _, err := requests.Create(ctx, actor, sr.dto); err != nil {
					return fmt.Errorf("seed request %q: %w", sr.dto.Title, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  created request: %s\n", sr.dto.Title)
			}
			return nil
		},
	}
}
