package repository

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/pkg/logger"
	"github.com/nem-pay/conciliare/pkg/validation"
)

type PostgresDB struct {
	logger *logger.Logger

	invoicePrefix string

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, invoicePrefix string, logger *logger.Logger) (models.Repository, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(&models.Invoice{}, &models.InvoiceChannel{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger, invoicePrefix: invoicePrefix}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

// CreateInvoice persists a new invoice. The number is allocated inside a
// transaction from the configured prefix and the next sequence value.
func (db *PostgresDB) CreateInvoice(invoice *models.Invoice) error {
	return db.Conn.Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&models.Invoice{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("failed to read invoice sequence: %s", err)
		}
		invoice.Seq = maxSeq + 1
		invoice.Number = validation.NormalizeInvoiceNumber(fmt.Sprintf("%s%d", db.invoicePrefix, invoice.Seq))
		if err := tx.Create(invoice).Error; err != nil {
			return fmt.Errorf("failed to create invoice: %s", err)
		}
		return nil
	})
}

func (db *PostgresDB) GetInvoice(number string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := db.Conn.Preload("Channels").Where("number = ?", validation.NormalizeInvoiceNumber(number)).First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice: %s", err)
	}

	return &invoice, nil
}

func (db *PostgresDB) GetInvoiceByPayer(address string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := db.Conn.
		Where("payer = ? AND status IN ?", validation.NormalizeAddress(address), models.PendingStatuses()).
		Order("created_at DESC").
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice by payer: %s", err)
	}

	return &invoice, nil
}

func (db *PostgresDB) PendingInvoices(recipient string) ([]*models.Invoice, error) {
	var invoices []*models.Invoice
	err := db.Conn.
		Where("recipient = ? AND status IN ?", validation.NormalizeAddress(recipient), models.PendingStatuses()).
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending invoices: %s", err)
	}

	return invoices, nil
}

func (db *PostgresDB) PendingRecipients() ([]string, error) {
	var recipients []string
	err := db.Conn.Model(&models.Invoice{}).
		Where("status IN ?", models.PendingStatuses()).
		Distinct("recipient").
		Pluck("recipient", &recipients).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending recipients: %s", err)
	}

	return recipients, nil
}

func (db *PostgresDB) SaveInvoice(invoice *models.Invoice) error {
	if err := db.Conn.Save(invoice).Error; err != nil {
		return fmt.Errorf("failed to save invoice: %s", err)
	}

	return nil
}

func (db *PostgresDB) AddInvoiceChannel(number, channelID string) error {
	channel := models.InvoiceChannel{
		InvoiceNumber: validation.NormalizeInvoiceNumber(number),
		ChannelID:     channelID,
	}
	if err := db.Conn.Create(&channel).Error; err != nil {
		return fmt.Errorf("failed to add invoice channel: %s", err)
	}

	return nil
}

func (db *PostgresDB) ExpireInvoicesBefore(timestamp int64) error {
	err := db.Conn.Model(&models.Invoice{}).
		Where("created_at < ? AND is_paid = ? AND status <> ?", timestamp, false, models.StatusExpired).
		Updates(map[string]interface{}{"status": models.StatusExpired, "updated_at": time.Now().Unix()}).Error
	if err != nil {
		return fmt.Errorf("failed to expire invoices: %s", err)
	}

	return nil
}
