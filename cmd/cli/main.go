package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiBaseURL string
	verbose    bool
	timeout    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hd-cli",
		Short: "Helper Dispatch CLI",
		Long:  "Command-line interface for the helper dispatch service",
	}

	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "http://localhost:8080", "API server base URL")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 30, "Request timeout in seconds")

	rootCmd.AddCommand(
		createBookingCommands(),
		createHelperCommands(),
		createSystemCommands(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createBookingCommands() *cobra.Command {
	bookingCmd := &cobra.Command{
		Use:   "booking",
		Short: "Booking management commands",
	}

	createCmd := &cobra.Command{
		Use:   "create [requester-id] [service-type] [lat] [lng]",
		Short: "Create a booking and dispatch a helper",
		Args:  cobra.ExactArgs(4),
		RunE:  createBooking,
	}
	createCmd.Flags().String("scheduled-at", "", "Schedule for later (RFC3339 format)")

	statusCmd := &cobra.Command{
		Use:   "status [booking-id]",
		Short: "Get booking status",
		Args:  cobra.ExactArgs(1),
		RunE:  getBookingStatus,
	}

	acceptCmd := &cobra.Command{
		Use:   "accept [booking-id] [helper-id]",
		Short: "Accept an offered booking on behalf of a helper",
		Args:  cobra.ExactArgs(2),
		RunE:  acceptBooking,
	}

	rejectCmd := &cobra.Command{
		Use:   "reject [booking-id] [helper-id]",
		Short: "Reject an offered booking on behalf of a helper",
		Args:  cobra.ExactArgs(2),
		RunE:  rejectBooking,
	}
	rejectCmd.Flags().String("reason", "", "Rejection reason")

	cancelCmd := &cobra.Command{
		Use:   "cancel [booking-id]",
		Short: "Cancel a booking",
		Args:  cobra.ExactArgs(1),
		RunE:  cancelBooking,
	}

	bookingCmd.AddCommand(createCmd, statusCmd, acceptCmd, rejectCmd, cancelCmd)
	return bookingCmd
}

func createHelperCommands() *cobra.Command {
	helperCmd := &cobra.Command{
		Use:   "helper",
		Short: "Helper management commands",
	}

	registerCmd := &cobra.Command{
		Use:   "register [name] [skills] [lat] [lng]",
		Short: "Register a helper (skills comma-separated)",
		Args:  cobra.ExactArgs(4),
		RunE:  registerHelper,
	}
	registerCmd.Flags().String("phone", "", "Helper phone number")
	registerCmd.Flags().Float64("rating", 0, "Initial rating")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered helpers",
		RunE:  listHelpers,
	}

	locationCmd := &cobra.Command{
		Use:   "location [helper-id] [lat] [lng]",
		Short: "Update a helper's location",
		Args:  cobra.ExactArgs(3),
		RunE:  updateHelperLocation,
	}

	helperCmd.AddCommand(registerCmd, listCmd, locationCmd)
	return helperCmd
}

func createSystemCommands() *cobra.Command {
	systemCmd := &cobra.Command{
		Use:   "system",
		Short: "System management commands",
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check system health",
		RunE:  checkSystemHealth,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Get dispatch statistics",
		RunE:  getStats,
	}

	systemCmd.AddCommand(healthCmd, statsCmd)
	return systemCmd
}

func createBooking(cmd *cobra.Command, args []string) error {
	lat, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude: %w", err)
	}

	request := map[string]interface{}{
		"requester_id": args[0],
		"service_type": args[1],
		"location": map[string]float64{
			"latitude":  lat,
			"longitude": lng,
		},
	}

	scheduledAtStr, _ := cmd.Flags().GetString("scheduled-at")
	if scheduledAtStr != "" {
		scheduledAt, err := time.Parse(time.RFC3339, scheduledAtStr)
		if err != nil {
			return fmt.Errorf("invalid scheduled-at format: %w", err)
		}
		request["scheduled_at"] = scheduledAt
	}

	response, err := makeAPIRequest("POST", "/api/v1/bookings", request)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Response: %s\n", response)
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(response, &result); err == nil {
		if helper, ok := result["assigned_helper"].(map[string]interface{}); ok {
			fmt.Printf("Helper assigned: %s (%s)\n", helper["name"], helper["id"])
			fmt.Printf("Distance: %.2f km | Arrival: %v min\n",
				result["distance_km"], result["arrival_minutes"])
			return nil
		}
		if msg, ok := result["message"].(string); ok {
			fmt.Println(msg)
			return nil
		}
	}
	fmt.Printf("Booking created: %s\n", response)
	return nil
}

func getBookingStatus(cmd *cobra.Command, args []string) error {
	response, err := makeAPIRequest("GET", "/api/v1/bookings/"+args[0], nil)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Response: %s\n", response)
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(response, &result); err == nil {
		if booking, ok := result["booking"].(map[string]interface{}); ok {
			fmt.Printf("Booking ID: %s\n", booking["id"])
			fmt.Printf("Service: %s\n", booking["service_type"])
			fmt.Printf("Status: %s\n", booking["status"])
			fmt.Printf("Rejections: %v\n", booking["rejection_count"])
			if helperID, ok := booking["helper_id"]; ok && helperID != nil {
				fmt.Printf("Helper: %s\n", helperID)
			}
			return nil
		}
	}
	fmt.Printf("Booking: %s\n", response)
	return nil
}

func acceptBooking(cmd *cobra.Command, args []string) error {
	request := map[string]interface{}{"helper_id": args[1]}

	response, err := makeAPIRequest("PUT", "/api/v1/bookings/"+args[0]+"/accept", request)
	if err != nil {
		return err
	}

	fmt.Printf("Booking %s accepted\n", args[0])
	if verbose {
		fmt.Printf("Response: %s\n", response)
	}
	return nil
}

func rejectBooking(cmd *cobra.Command, args []string) error {
	reason, _ := cmd.Flags().GetString("reason")
	request := map[string]interface{}{
		"helper_id": args[1],
		"reason":    reason,
	}

	response, err := makeAPIRequest("PUT", "/api/v1/bookings/"+args[0]+"/reject", request)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Response: %s\n", response)
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(response, &result); err == nil {
		if helper, ok := result["assigned_helper"].(map[string]interface{}); ok {
			fmt.Printf("Reassigned to: %s (%s)\n", helper["name"], helper["id"])
			return nil
		}
		if msg, ok := result["message"].(string); ok {
			fmt.Println(msg)
			return nil
		}
	}
	fmt.Printf("Rejection recorded: %s\n", response)
	return nil
}

func cancelBooking(cmd *cobra.Command, args []string) error {
	response, err := makeAPIRequest("DELETE", "/api/v1/bookings/"+args[0], nil)
	if err != nil {
		return err
	}

	fmt.Printf("Booking %s cancelled\n", args[0])
	if verbose {
		fmt.Printf("Response: %s\n", response)
	}
	return nil
}

func registerHelper(cmd *cobra.Command, args []string) error {
	lat, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude: %w", err)
	}

	phone, _ := cmd.Flags().GetString("phone")
	rating, _ := cmd.Flags().GetFloat64("rating")

	request := map[string]interface{}{
		"name":   args[0],
		"skills": strings.Split(args[1], ","),
		"location": map[string]float64{
			"latitude":  lat,
			"longitude": lng,
		},
		"phone":  phone,
		"rating": rating,
	}

	response, err := makeAPIRequest("POST", "/api/v1/helpers", request)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Response: %s\n", response)
		return nil
	}

	var helper map[string]interface{}
	if err := json.Unmarshal(response, &helper); err == nil {
		fmt.Printf("Helper registered: %s\n", helper["id"])
		return nil
	}
	fmt.Printf("Helper registered: %s\n", response)
	return nil
}

func listHelpers(cmd *cobra.Command, args []string) error {
	response, err := makeAPIRequest("GET", "/api/v1/helpers", nil)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Response: %s\n", response)
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(response, &result); err == nil {
		if helpers, ok := result["helpers"].([]interface{}); ok {
			fmt.Printf("Found %d helpers:\n\n", len(helpers))
			for _, h := range helpers {
				if helper, ok := h.(map[string]interface{}); ok {
					fmt.Printf("ID: %s | Name: %s | Rating: %v | Available: %v\n",
						helper["id"], helper["name"], helper["rating"], helper["available"])
				}
			}
			return nil
		}
	}
	fmt.Printf("Helpers: %s\n", response)
	return nil
}

func updateHelperLocation(cmd *cobra.Command, args []string) error {
	lat, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude: %w", err)
	}

	request := map[string]interface{}{
		"location": map[string]float64{
			"latitude":  lat,
			"longitude": lng,
		},
	}

	response, err := makeAPIRequest("PUT", "/api/v1/helpers/"+args[0]+"/location", request)
	if err != nil {
		return err
	}

	fmt.Printf("Location updated for helper %s\n", args[0])
	if verbose {
		fmt.Printf("Response: %s\n", response)
	}
	return nil
}

func checkSystemHealth(cmd *cobra.Command, args []string) error {
	response, err := makeAPIRequest("GET", "/health", nil)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Response: %s\n", response)
		return nil
	}

	var health map[string]interface{}
	if err := json.Unmarshal(response, &health); err == nil {
		fmt.Printf("System Health: %s\n", health["status"])
		if checks, ok := health["checks"].(map[string]interface{}); ok {
			for name, status := range checks {
				fmt.Printf("  %s: %s\n", name, status)
			}
		}
		return nil
	}
	fmt.Printf("System Health: %s\n", response)
	return nil
}

func getStats(cmd *cobra.Command, args []string) error {
	response, err := makeAPIRequest("GET", "/api/v1/stats", nil)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Response: %s\n", response)
		return nil
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(response, &stats); err == nil {
		fmt.Printf("Dispatch Statistics:\n")
		fmt.Printf("Helpers total: %v\n", stats["helpers_total"])
		fmt.Printf("Helpers available: %v\n", stats["helpers_available"])
		return nil
	}
	fmt.Printf("Stats: %s\n", response)
	return nil
}

func makeAPIRequest(method, endpoint string, data interface{}) ([]byte, error) {
	var body []byte
	var err error

	if data != nil {
		body, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	client := &http.Client{Timeout: time.Duration(timeout) * time.Second}
	req, err := http.NewRequest(method, apiBaseURL+endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody := new(bytes.Buffer)
	respBody.ReadFrom(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, respBody.String())
	}

	return respBody.Bytes(), nil
}
