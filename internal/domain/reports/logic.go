package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"pms/internal/domain/appraisal"
)

// RatingAverages carries fleet-wide rating means. A nil field means no
// rating of that kind has been recorded yet.
type RatingAverages struct {
	AppraiserOverall *float64 `json:"appraiserOverall"`
	ReviewerOverall  *float64 `json:"reviewerOverall"`
	GoalSelf         *float64 `json:"goalSelf"`
	GoalAppraiser    *float64 `json:"goalAppraiser"`
}

// Summary is the aggregate view of every appraisal in the system, served
// live and persisted verbatim by the snapshot job.
type Summary struct {
	TotalAppraisals int            `json:"totalAppraisals"`
	StatusCounts    map[string]int `json:"statusCounts"`
	InFlight        int            `json:"inFlight"`
	Completed       int            `json:"completed"`
	CompletionRate  float64        `json:"completionRate"`
	DraftsReady     int            `json:"draftsReady"`
	Ratings         RatingAverages `json:"ratings"`
	GeneratedAt     time.Time      `json:"generatedAt"`
}

// BuildSummary derives the totals from a raw status count map. Every known
// status gets an entry even when its count is zero, so clients can render
// the full pipeline without guessing at keys.
func BuildSummary(statusCounts map[string]int, draftsReady int, ratings RatingAverages, now time.Time) Summary {
	counts := map[string]int{}
	total := 0
	for _, name := range appraisal.StatusNames() {
		counts[name] = statusCounts[name]
		total += statusCounts[name]
	}

	completed := counts[appraisal.StatusComplete.String()]
	drafts := counts[appraisal.StatusDraft.String()]
	rate := 0.0
	if total > 0 {
		rate = float64(completed) / float64(total)
	}

	return Summary{
		TotalAppraisals: total,
		StatusCounts:    counts,
		InFlight:        total - completed - drafts,
		Completed:       completed,
		CompletionRate:  rate,
		DraftsReady:     draftsReady,
		Ratings:         ratings,
		GeneratedAt:     now,
	}
}

// AppraisalRow is one flattened appraisal for tabular export.
type AppraisalRow struct {
	ID              string
	Status          string
	Appraisee       string
	Appraiser       string
	Reviewer        string
	StartDate       time.Time
	EndDate         time.Time
	GoalCount       int
	WeightageTotal  int
	AppraiserRating *int
	ReviewerRating  *int
	UpdatedAt       time.Time
}

var exportColumns = []string{
	"ID",
	"Status",
	"Appraisee",
	"Appraiser",
	"Reviewer",
	"Start Date",
	"End Date",
	"Goals",
	"Weightage Total",
	"Appraiser Rating",
	"Reviewer Rating",
	"Updated At",
}

func (r AppraisalRow) record() []string {
	return []string{
		r.ID,
		r.Status,
		r.Appraisee,
		r.Appraiser,
		r.Reviewer,
		r.StartDate.Format("2006-01-02"),
		r.EndDate.Format("2006-01-02"),
		strconv.Itoa(r.GoalCount),
		strconv.Itoa(r.WeightageTotal),
		ratingString(r.AppraiserRating),
		ratingString(r.ReviewerRating),
		r.UpdatedAt.Format(time.RFC3339),
	}
}

func ratingString(rating *int) string {
	if rating == nil {
		return ""
	}
	return strconv.Itoa(*rating)
}

// WriteCSV streams rows as a CSV document with a header line.
func WriteCSV(w io.Writer, rows []AppraisalRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportColumns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row.record()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX renders rows as a single-sheet workbook with a bold, frozen
// header row.
func WriteXLSX(w io.Writer, rows []AppraisalRow) error {
	const sheet = "Appraisals"

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headerStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, col := range exportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
		if err := file.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}
	if err := file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row.record() {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	if err := file.SetColWidth(sheet, "A", "A", 38); err != nil {
		return err
	}
	if err := file.SetColWidth(sheet, "B", "L", 18); err != nil {
		return err
	}

	return file.Write(w)
}

// PartyNames carries the display names of an appraisal's three parties
// for documents that should not show bare ids.
type PartyNames struct {
	Appraisee string
	Appraiser string
	Reviewer  string
}

// WriteAppraisalPDF renders the printable record of a completed
// appraisal: parties, period, every goal with its ratings and comments,
// and both overall evaluations.
func WriteAppraisalPDF(w io.Writer, a appraisal.Appraisal, names PartyNames, categories map[string]string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Appraisal Record")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, fmt.Sprintf("Appraisee: %s", names.Appraisee))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Appraiser: %s", names.Appraiser))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Reviewer: %s", names.Reviewer))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", a.StartDate.Format("2006-01-02"), a.EndDate.Format("2006-01-02")))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Completed: %s", a.UpdatedAt.Format("2006-01-02")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Goals")
	pdf.Ln(8)
	for _, goal := range a.Goals {
		heading := fmt.Sprintf("%s (%d%%)", goal.Title, goal.Weightage)
		if name := categories[stringValue(goal.CategoryID)]; name != "" {
			heading = fmt.Sprintf("%s (%d%%, %s)", goal.Title, goal.Weightage, name)
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, heading, "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, 6, fmt.Sprintf("Self rating: %s    Appraiser rating: %s",
			ratingOrNA(goal.SelfRating), ratingOrNA(goal.AppraiserRating)))
		pdf.Ln(6)
		if comment := stringValue(goal.SelfComment); comment != "" {
			pdf.MultiCell(0, 6, fmt.Sprintf("Self: %s", comment), "", "L", false)
		}
		if comment := stringValue(goal.AppraiserComment); comment != "" {
			pdf.MultiCell(0, 6, fmt.Sprintf("Appraiser: %s", comment), "", "L", false)
		}
		pdf.Ln(2)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Overall Evaluation")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, fmt.Sprintf("Appraiser overall rating: %s", ratingOrNA(a.AppraiserOverallRating)))
	pdf.Ln(7)
	if comment := stringValue(a.AppraiserOverallComments); comment != "" {
		pdf.MultiCell(0, 6, comment, "", "L", false)
	}
	pdf.Cell(0, 7, fmt.Sprintf("Reviewer overall rating: %s", ratingOrNA(a.ReviewerOverallRating)))
	pdf.Ln(7)
	if comment := stringValue(a.ReviewerOverallComments); comment != "" {
		pdf.MultiCell(0, 6, comment, "", "L", false)
	}

	return pdf.Output(w)
}

func ratingOrNA(rating *int) string {
	if rating == nil {
		return "n/a"
	}
	return strconv.Itoa(*rating)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
