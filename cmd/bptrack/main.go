// Package main is the entry point for the bptrack command line client.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

type runFunc func(a *app, args []string) error

func main() {
	if len(os.Args) < 2 {
		showUsage()
		return
	}

	var run runFunc
	anonymous := false

	switch os.Args[1] {
	case "login":
		run, anonymous = runLogin, true
	case "otp":
		run, anonymous = runOTP, true
	case "verify":
		run, anonymous = runVerify, true
	case "register":
		run, anonymous = runRegister, true
	case "logout":
		run = runLogout
	case "whoami":
		run = runWhoami
	case "password":
		run = runPassword
	case "records":
		run = runRecords
	case "add":
		run = runAdd
	case "scan":
		run = runScan
	case "delete":
		run = runDelete
	case "summary":
		run = runSummary
	case "stats":
		run = runStats
	case "chart":
		run = runChart
	case "export":
		run = runExport
	case "watch":
		run = runWatch
	case "doctors":
		run = runDoctors
	case "authorize":
		run = runAuthorize
	case "revoke":
		run = runRevoke
	case "requests":
		run = runRequests
	case "approve":
		run = runApprove
	case "reject":
		run = runReject
	case "patients":
		run = runPatients
	case "request-access":
		run = runRequestAccess
	case "patient":
		run = runPatient
	case "search":
		run = runSearch
	case "version":
		fmt.Println("bptrack", version)
		return
	default:
		showUsage()
		os.Exit(1)
	}

	if err := execute(run, anonymous, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute(run runFunc, anonymous bool, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if !anonymous {
		if err := a.requireSession(); err != nil {
			return err
		}
	}
	return run(a, args)
}

func showUsage() {
	fmt.Println("bptrack - Blood pressure tracking")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bptrack login <email|phone>            - Sign in (password from BPTRACK_PASSWORD or stdin)")
	fmt.Println("  bptrack logout                         - Sign out and forget the session")
	fmt.Println("  bptrack whoami                         - Show the signed-in user and their limits")
	fmt.Println("  bptrack otp <email|phone> <purpose>    - Request a one-time code")
	fmt.Println("  bptrack verify <email|phone> <purpose> <code>")
	fmt.Println("                                         - Verify a one-time code")
	fmt.Println("  bptrack register <email> <full name>   - Create a patient account")
	fmt.Println("  bptrack password                       - Change password (current, then new, from stdin)")
	fmt.Println()
	fmt.Println("  bptrack records [-page N]              - List stored readings")
	fmt.Println("  bptrack add <sys> <dia> <pulse>        - Save a manual reading (-date, -time, -notes)")
	fmt.Println("  bptrack scan <image>                   - Read a monitor photo and save the reading")
	fmt.Println("  bptrack delete <id>                    - Delete a reading")
	fmt.Println("  bptrack summary [-window N]            - Last reading, average pulse and totals")
	fmt.Println("  bptrack stats [-days N]                - Average, minimum and maximum from the backend")
	fmt.Println("  bptrack chart <out.html>               - Write the trend chart")
	fmt.Println("  bptrack export <out.xlsx>              - Write readings to an Excel workbook")
	fmt.Println("  bptrack watch [-interval 5m]           - Refresh and print the summary periodically")
	fmt.Println()
	fmt.Println("  bptrack doctors                        - List doctors with access to your records")
	fmt.Println("  bptrack authorize <doctor-id>          - Give a doctor access")
	fmt.Println("  bptrack revoke <doctor-id>             - Remove a doctor's access")
	fmt.Println("  bptrack requests                       - List pending access requests")
	fmt.Println("  bptrack approve <request-id>           - Approve an access request")
	fmt.Println("  bptrack reject <request-id>            - Reject an access request")
	fmt.Println("  bptrack patients                       - (doctor) List patients you can view")
	fmt.Println("  bptrack request-access <patient-id>    - (doctor) Ask a patient for access")
	fmt.Println("  bptrack patient <patient-id>           - (doctor) Show a patient's readings")
	fmt.Println("  bptrack search <query> [role]          - Find users by name, phone or email")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  BPTRACK_API_URL     - Backend URL (default http://localhost:8000)")
	fmt.Println("  BPTRACK_API_KEY     - Backend API key (optional)")
	fmt.Println("  BPTRACK_STORE       - Session database path")
	fmt.Println("  BPTRACK_TIMEZONE    - Timezone for dates (default Local)")
	fmt.Println("  BPTRACK_WINDOW      - Readings averaged in the summary (default 30)")
	fmt.Println("  BPTRACK_LOG_LEVEL   - debug, info, warn or error")
	fmt.Println()
	fmt.Println("Settings are also read from a .env file in the current directory.")
}
