package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/bptrack/internal/api"
	"github.com/jwulff/bptrack/internal/bloodpressure"
)

func runLogin(a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("email or phone number required")
	}
	password, err := a.readSecret("BPTRACK_PASSWORD", "Password: ")
	if err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	email, phone := contact(args[0])
	session, err := a.client.Login(ctx, api.Credentials{Email: email, PhoneNumber: phone, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	// The login response carries a partial profile, the full one has the date of birth.
	user := session.User
	if full, err := a.client.CurrentUser(ctx); err == nil {
		user = *full
	} else {
		a.logger.Warn("failed to load profile", zap.Error(err))
	}

	if err := a.saveSession(ctx, session.AccessToken, user); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s)\n", user.FullName, user.Role)
	return nil
}

func runLogout(a *app, args []string) error {
	ctx, cancel := a.context()
	defer cancel()

	if err := a.client.Logout(ctx); err != nil {
		a.logger.Warn("backend logout failed", zap.Error(err))
	}
	if err := a.store.DeleteSession(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

func runWhoami(a *app, args []string) error {
	ctx, cancel := a.context()
	defer cancel()

	user, err := a.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if err := a.saveSession(ctx, a.session.Token, *user); err != nil {
		return err
	}

	person := user.Person()
	now := time.Now()
	limits := person.Limits(now)

	fmt.Printf("Name:      %s\n", user.FullName)
	fmt.Printf("Role:      %s\n", user.Role)
	if user.Email != "" {
		fmt.Printf("Email:     %s\n", user.Email)
	}
	if user.PhoneNumber != "" {
		fmt.Printf("Phone:     %s\n", user.PhoneNumber)
	}
	if person.DateOfBirth != nil {
		fmt.Printf("Age:       %d\n", person.Age(now))
	} else {
		fmt.Printf("Age:       unknown (assuming %d)\n", bloodpressure.DefaultAge)
	}
	fmt.Printf("Limits:    %s, up to %d/%d mmHg\n", limits.AgeGroup, limits.SysMax, limits.DiaMax)
	return nil
}

func runOTP(a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: bptrack otp <email|phone> <purpose>")
	}
	ctx, cancel := a.context()
	defer cancel()

	email, phone := contact(args[0])
	sent, err := a.client.RequestOTP(ctx, api.OTPRequest{Email: email, PhoneNumber: phone, Purpose: args[1]})
	if err != nil {
		return err
	}
	fmt.Printf("Code sent by %s to %s, valid for %d minutes\n", sent.ContactMethod, sent.ContactTarget, sent.ExpiresInMinutes)
	return nil
}

func runVerify(a *app, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: bptrack verify <email|phone> <purpose> <code>")
	}
	ctx, cancel := a.context()
	defer cancel()

	email, phone := contact(args[0])
	v := api.OTPVerification{Email: email, PhoneNumber: phone, Purpose: args[1], OTPCode: args[2]}

	// Signed-in users verify their own contact details.
	verify := a.client.VerifyOTP
	if a.session != nil && (v.Purpose == api.PurposeEmailVerification || v.Purpose == api.PurposePhoneVerification) {
		verify = a.client.VerifyContact
	}
	if err := verify(ctx, v); err != nil {
		return err
	}
	fmt.Println("Verified")
	return nil
}

func runRegister(a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: bptrack register <email> <full name>")
	}
	password, err := a.readSecret("BPTRACK_PASSWORD", "Password: ")
	if err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	email, phone := contact(args[0])
	reg, err := a.client.Register(ctx, api.Registration{
		Email:       email,
		PhoneNumber: phone,
		Password:    password,
		FullName:    args[1],
		Role:        string(bloodpressure.RolePatient),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Registered user %d, run 'bptrack login %s' to sign in\n", reg.UserID, args[0])
	return nil
}

func runPassword(a *app, args []string) error {
	current, err := a.readLine("Current password: ")
	if err != nil {
		return err
	}
	next, err := a.readLine("New password: ")
	if err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	if err := a.client.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	fmt.Println("Password changed")
	return nil
}
