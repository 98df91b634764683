package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	employeedomain "github.com/smallbiznis/payrun/internal/employee/domain"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var created = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&employeedomain.Employee{},
		&employeedomain.EmployeeTaxProfile{},
		&employeedomain.TimeEntry{},
	))
	return db
}

func day(d int) time.Time {
	return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestGetActiveEmployees(t *testing.T) {
	db := setupDB(t)
	wallet := snowflake.ID(77)
	ot := decimal.NewFromInt(40)
	require.NoError(t, db.Create([]employeedomain.Employee{
		{ID: 3, EmployerID: 1, Name: "Carol", RegularRate: decimal.NewFromInt(25), Active: true, CreatedAt: created},
		{ID: 1, EmployerID: 1, Name: "Alice", RegularRate: decimal.NewFromInt(20), OvertimeRate: &ot, DirectDeposit: true, WalletID: &wallet, Active: true, CreatedAt: created},
		{ID: 2, EmployerID: 1, Name: "Bob", RegularRate: decimal.NewFromInt(20), Active: true, CreatedAt: created},
		{ID: 4, EmployerID: 2, Name: "Dan", RegularRate: decimal.NewFromInt(20), Active: true, CreatedAt: created},
	}).Error)
	require.NoError(t, db.Exec(`UPDATE employees SET active = ? WHERE id = ?`, false, 2).Error)

	items, err := NewDirectory(db).GetActiveEmployees(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Alice", items[0].Name)
	assert.Equal(t, "Carol", items[1].Name)
	require.NotNil(t, items[0].WalletID)
	assert.Equal(t, wallet, *items[0].WalletID)
	require.NotNil(t, items[0].OvertimeRate)
	assert.True(t, items[0].OvertimeRate.Equal(ot))
	assert.Nil(t, items[1].WalletID)
}

func TestGetEmployeeTaxProfile(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&employeedomain.EmployeeTaxProfile{
		ID:               10,
		EmployeeID:       1,
		Year:             2023,
		FilingStatus:     taxrefdomain.FilingStatusMarriedJoint,
		Allowances:       2,
		StateOfResidence: "CA",
		CreatedAt:        created,
		UpdatedAt:        created,
	}).Error)

	dir := NewDirectory(db)
	profile, err := dir.GetEmployeeTaxProfile(context.Background(), 1, 2023)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, taxrefdomain.FilingStatusMarriedJoint, profile.FilingStatus)
	assert.Equal(t, 2, profile.Allowances)
	assert.Equal(t, "CA", profile.StateOfResidence)

	profile, err = dir.GetEmployeeTaxProfile(context.Background(), 1, 2024)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestListApprovedTimeEntries(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create([]employeedomain.TimeEntry{
		{ID: 1, EmployeeID: 1, Date: day(1), HoursWorked: decimal.NewFromInt(8), Status: employeedomain.TimeEntryStatusApproved, CreatedAt: created},
		{ID: 2, EmployeeID: 1, Date: day(14), HoursWorked: decimal.NewFromInt(8), Status: employeedomain.TimeEntryStatusApproved, CreatedAt: created},
		{ID: 3, EmployeeID: 1, Date: day(15), HoursWorked: decimal.NewFromInt(8), Status: employeedomain.TimeEntryStatusApproved, CreatedAt: created},
		{ID: 4, EmployeeID: 1, Date: day(3), HoursWorked: decimal.NewFromInt(8), Status: employeedomain.TimeEntryStatusPending, CreatedAt: created},
		{ID: 5, EmployeeID: 2, Date: day(3), HoursWorked: decimal.NewFromInt(8), Status: employeedomain.TimeEntryStatusApproved, CreatedAt: created},
	}).Error)

	items, err := NewTimeTracker(db).ListApprovedTimeEntries(context.Background(), 1, day(1), day(14))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, snowflake.ID(1), items[0].ID)
	assert.Equal(t, snowflake.ID(2), items[1].ID)
}
