package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lifesync/internal/core"
	"lifesync/internal/export"
	"lifesync/internal/normalize"
	"lifesync/internal/projection"
)

var medCmd = &cobra.Command{
	Use:   "med",
	Short: "Keep prescriptions and their photos",
}

var (
	medDosage  string
	medDoctor  string
	medDate    string
	medCost    string
	medTags    string
	medPatient string
)

var medAddCmd = &cobra.Command{
	Use:   "add <patient> <medication>",
	Short: "Record a prescription",
	Args:  cobra.ExactArgs(2),
	RunE:  runMedAdd,
}

var medPhotoCmd = &cobra.Command{
	Use:   "photo <prescription-id> <file>",
	Short: "Attach a photo of the prescription",
	Args:  cobra.ExactArgs(2),
	RunE:  runMedPhoto,
}

var medListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prescriptions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runMedList,
}

var medPatientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "List patients and what their prescriptions cost",
	Args:  cobra.NoArgs,
	RunE:  runMedPatients,
}

func init() {
	medAddCmd.Flags().StringVar(&medDosage, "dosage", "", "Dosage")
	medAddCmd.Flags().StringVar(&medDoctor, "doctor", "", "Prescribing doctor")
	medAddCmd.Flags().StringVar(&medDate, "date", "", "Date YYYY-MM-DD (default today)")
	medAddCmd.Flags().StringVar(&medCost, "cost", "", "Cost")
	medAddCmd.Flags().StringVar(&medTags, "tags", "", "Comma-separated tags")
	medListCmd.Flags().StringVar(&medPatient, "patient", "", "Only this patient")
	medCmd.AddCommand(medAddCmd, medPhotoCmd, medListCmd, medPatientsCmd)
}

func runMedAdd(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppMedical)
	if err != nil {
		return err
	}
	day, err := dayFlag(medDate)
	if err != nil {
		return err
	}
	p := core.Prescription{
		PatientName: args[0],
		Medication:  args[1],
		Dosage:      medDosage,
		Doctor:      medDoctor,
		Date:        day.String(),
		Tags:        splitTags(medTags),
	}
	if medCost != "" {
		if p.Cost, err = core.ParseAmount(medCost); err != nil {
			return fmt.Errorf("cost: %w", err)
		}
	}
	id, err := s.gw.CreatePrescription(cmd.Context(), p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded prescription %s\n", id)
	return nil
}

func runMedPhoto(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppMedical)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	url, err := s.gw.AttachPhoto(cmd.Context(), args[0], filepath.Base(args[1]), data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Attached %s\n", url)
	return nil
}

func loadPrescriptions(cmd *cobra.Command, s *session) ([]core.Prescription, error) {
	docs, err := s.docs(cmd.Context(), core.CollectionPrescriptions)
	if err != nil {
		return nil, err
	}
	return normalize.All(docs, s.gw.Normalizer().Prescription), nil
}

func runMedList(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppMedical)
	if err != nil {
		return err
	}
	ps, err := loadPrescriptions(cmd, s)
	if err != nil {
		return err
	}
	if medPatient != "" {
		ps = projection.Filter(ps, func(p core.Prescription) bool { return strings.EqualFold(p.PatientName, medPatient) })
	}
	ps = projection.SortByDateDesc(ps, func(p core.Prescription) string { return p.Date })
	return printTable(cmd.OutOrStdout(), export.Prescriptions("prescriptions", ps))
}

func runMedPatients(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppMedical)
	if err != nil {
		return err
	}
	ps, err := loadPrescriptions(cmd, s)
	if err != nil {
		return err
	}
	cost := projection.SumBy(ps,
		func(p core.Prescription) string { return p.PatientName },
		func(p core.Prescription) (float64, bool) { return p.Cost, !p.IsCorrupt("cost") })
	return printTable(cmd.OutOrStdout(), export.Subtotals("cost per patient", cost))
}
