package main

import (
	"fmt"
	"time"

	"github.com/jwulff/bptrack/internal/api"
	"github.com/jwulff/bptrack/internal/bloodpressure"
)

func formatTime(t *api.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

func runDoctors(a *app, args []string) error {
	ctx, cancel := a.context()
	defer cancel()

	doctors, err := a.client.AuthorizedDoctors(ctx)
	if err != nil {
		return err
	}
	if len(doctors) == 0 {
		fmt.Println("No doctors have access to your records")
		return nil
	}
	for _, d := range doctors {
		fmt.Printf("  %-6d %-30s %-20s since %s\n", d.DoctorID, d.FullName, d.Hospital, formatTime(d.AuthorizedSince, a.cfg.Location()))
	}
	return nil
}

func runAuthorize(a *app, args []string) error {
	id, err := parseID(args, "doctor id")
	if err != nil {
		return err
	}
	ctx, cancel := a.context()
	defer cancel()

	auth, err := a.client.AuthorizeDoctor(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s can now view your records\n", auth.DoctorName)
	return nil
}

func runRevoke(a *app, args []string) error {
	id, err := parseID(args, "doctor id")
	if err != nil {
		return err
	}
	ctx, cancel := a.context()
	defer cancel()

	if err := a.client.RevokeDoctor(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Revoked access for doctor %d\n", id)
	return nil
}

func runRequests(a *app, args []string) error {
	ctx, cancel := a.context()
	defer cancel()

	var requests []api.AccessRequest
	var err error
	if a.session.User.Role == bloodpressure.RoleDoctor {
		requests, err = a.client.DoctorAccessRequests(ctx)
	} else {
		requests, err = a.client.AccessRequests(ctx)
	}
	if err != nil {
		return err
	}

	if len(requests) == 0 {
		fmt.Println("No access requests")
		return nil
	}
	for _, r := range requests {
		name := r.DoctorName
		if name == "" {
			name = r.PatientName
		}
		fmt.Printf("  %-6d %-30s %-10s %s\n", r.RequestID, name, r.Status, formatTime(r.CreatedAt, a.cfg.Location()))
	}
	return nil
}

func runApprove(a *app, args []string) error {
	id, err := parseID(args, "request id")
	if err != nil {
		return err
	}
	ctx, cancel := a.context()
	defer cancel()

	if err := a.client.ApproveRequest(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Approved request %d\n", id)
	return nil
}

func runReject(a *app, args []string) error {
	id, err := parseID(args, "request id")
	if err != nil {
		return err
	}
	ctx, cancel := a.context()
	defer cancel()

	// Doctors withdraw their own requests instead.
	if a.session.User.Role == bloodpressure.RoleDoctor {
		err = a.client.DeleteAccessRequest(ctx, id)
	} else {
		err = a.client.RejectRequest(ctx, id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Removed request %d\n", id)
	return nil
}

func runPatients(a *app, args []string) error {
	ctx, cancel := a.context()
	defer cancel()

	patients, err := a.client.DoctorPatients(ctx)
	if err != nil {
		return err
	}
	if len(patients) == 0 {
		fmt.Println("No patients")
		return nil
	}
	for _, p := range patients {
		age := "-"
		if p.Age != nil {
			age = fmt.Sprint(*p.Age)
		}
		fmt.Printf("  %-6d %-30s %-8s %s\n", p.PatientID, p.FullName, p.Gender, age)
	}
	return nil
}

func runRequestAccess(a *app, args []string) error {
	id, err := parseID(args, "patient id")
	if err != nil {
		return err
	}
	ctx, cancel := a.context()
	defer cancel()

	if err := a.client.RequestPatientAccess(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Requested access to patient %d\n", id)
	return nil
}

func runPatient(a *app, args []string) error {
	id, err := parseID(args, "patient id")
	if err != nil {
		return err
	}
	ctx, cancel := a.context()
	defer cancel()

	patients, err := a.client.DoctorPatients(ctx)
	if err != nil {
		return err
	}
	limits := bloodpressure.LimitsForAge(bloodpressure.DefaultAge)
	for _, p := range patients {
		if p.PatientID == id && p.Age != nil {
			limits = bloodpressure.LimitsForAge(*p.Age)
		}
	}

	records, err := a.client.PatientRecords(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Limits: %s, up to %d/%d mmHg\n\n", limits.AgeGroup, limits.SysMax, limits.DiaMax)
	printReadings(api.Readings(records), limits, a.cfg.Location())
	return nil
}

func runSearch(a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("search query required")
	}
	role := ""
	if len(args) > 1 {
		role = args[1]
	}

	ctx, cancel := a.context()
	defer cancel()

	users, err := a.client.SearchUsers(ctx, args[0], role)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users found")
		return nil
	}
	for _, u := range users {
		fmt.Printf("  %-6d %-30s %-8s %s\n", u.ID, u.FullName, u.Role, u.PhoneNumber)
	}
	return nil
}
