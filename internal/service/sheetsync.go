package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"scraper-quota-system/internal/model"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetSyncService 把许可证台账同步到 Google Sheets 供运营查看
// 同步失败不影响主流程
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

func NewSheetSyncService(enableSync bool, credentialPath, spreadsheetID, sheetName string) (*SheetSyncService, error) {
	if !enableSync {
		return nil, nil
	}

	ctx := context.Background()

	// 读取凭证文件
	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, err
	}

	// 使用服务账号授权
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("无法加载凭证: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, err
	}

	return &SheetSyncService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// SyncLicense 按密钥定位行，存在则覆盖，否则追加
func (s *SheetSyncService) SyncLicense(license *model.License) error {
	if s == nil {
		return nil
	}

	// 先检查Sheet中是否已存在该Key
	rangeToSearch := fmt.Sprintf("%s!A2:A", s.sheetName)
	keyResp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rangeToSearch).Do()
	if err != nil {
		log.Printf("查询Sheet数据失败: %v", err)
		return fmt.Errorf("查询Sheet数据失败: %v", err)
	}

	var rowIndex int
	found := false
	for i, row := range keyResp.Values {
		if len(row) > 0 && row[0] == license.LicenseKey {
			found = true
			rowIndex = i + 2 // +2因为A2开始且数组从0开始
			break
		}
	}

	expires := ""
	if license.ExpiresAt != nil {
		expires = license.ExpiresAt.Format(time.RFC3339)
	}
	values := [][]interface{}{{
		license.LicenseKey,
		license.Email,
		license.Name,
		license.Plan,
		license.DailyLimit,
		license.IsActive,
		expires,
		license.UpdatedAt.Format(time.RFC3339),
	}}
	valueRange := &sheets.ValueRange{Values: values}

	if found {
		// 覆盖已有行
		updateRange := fmt.Sprintf("%s!A%d:H%d", s.sheetName, rowIndex, rowIndex)
		_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, updateRange, valueRange).
			ValueInputOption("RAW").Do()
		if err != nil {
			log.Printf("更新Sheet行失败: %v", err)
			return fmt.Errorf("更新Sheet行失败: %v", err)
		}
	} else {
		// 追加新行
		appendRange := fmt.Sprintf("%s!A2:H", s.sheetName)
		_, err = s.service.Spreadsheets.Values.Append(s.spreadsheetID, appendRange, valueRange).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Do()
		if err != nil {
			log.Printf("追加Sheet行失败: %v", err)
			return fmt.Errorf("追加Sheet行失败: %v", err)
		}
	}

	return nil
}
