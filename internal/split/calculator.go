package split

import (
	"errors"
	"fmt"

	"splitpay/internal/model"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 分账计算
// ============================================================================
//
// 平台佣金 = floor(总金额 × 费率) + 固定费用
// 组织者金额 = 总金额 - 平台佣金
//
// 组织者金额定义为差值，从不单独取整，因此两者之和恒等于总金额。
// 组织者承担网关手续费（MDR）以及取整差额，平台收取净额。
//
// ============================================================================

var ErrInvalidConfiguration = errors.New("分账配置不合法")

var (
	minPercentage = decimal.Zero
	maxPercentage = decimal.NewFromInt(1)
)

// FeeConfig 平台费率配置
type FeeConfig struct {
	Percentage          decimal.Decimal // [0, 1]
	FixedFee            int64           // 分
	PlatformRecipientID string
}

// Validate 校验费率配置
func (c FeeConfig) Validate() error {
	if c.Percentage.LessThan(minPercentage) || c.Percentage.GreaterThan(maxPercentage) {
		return fmt.Errorf("%w: 费率 %s 不在 [0,1] 区间", ErrInvalidConfiguration, c.Percentage)
	}
	if c.FixedFee < 0 {
		return fmt.Errorf("%w: 固定费用不能为负数: %d", ErrInvalidConfiguration, c.FixedFee)
	}
	if c.PlatformRecipientID == "" {
		return fmt.Errorf("%w: 缺少平台收款方 ID", ErrInvalidConfiguration)
	}
	return nil
}

// Result 分账结果
type Result struct {
	Platform  model.SplitRule
	Organizer model.SplitRule
}

// Rules 按 [平台, 组织者] 顺序返回分账规则
func (r *Result) Rules() []model.SplitRule {
	return []model.SplitRule{r.Platform, r.Organizer}
}

// Total 分账总额
func (r *Result) Total() int64 {
	return r.Platform.Amount + r.Organizer.Amount
}

// Compute 计算分账，纯函数，无副作用
func Compute(totalAmount int64, organizerRecipientID string, fee FeeConfig) (*Result, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if totalAmount < 0 {
		return nil, fmt.Errorf("%w: 总金额不能为负数: %d", ErrInvalidConfiguration, totalAmount)
	}
	if organizerRecipientID == "" {
		return nil, fmt.Errorf("%w: 缺少组织者收款方 ID", ErrInvalidConfiguration)
	}

	commission := decimal.NewFromInt(totalAmount).Mul(fee.Percentage).Floor().IntPart()
	platformAmount := commission + fee.FixedFee
	if platformAmount > totalAmount {
		return nil, fmt.Errorf("%w: 平台佣金 %d 超过总金额 %d", ErrInvalidConfiguration, platformAmount, totalAmount)
	}
	organizerAmount := totalAmount - platformAmount

	chargeRemainder := true
	return &Result{
		Platform: model.SplitRule{
			RecipientID:         fee.PlatformRecipientID,
			Amount:              platformAmount,
			Liable:              true,
			ChargeProcessingFee: false,
		},
		Organizer: model.SplitRule{
			RecipientID:         organizerRecipientID,
			Amount:              organizerAmount,
			Liable:              true,
			ChargeProcessingFee: true,
			ChargeRemainder:     &chargeRemainder,
		},
	}, nil
}

// Calculator 持有启动时校验过的费率配置
type Calculator struct {
	fee FeeConfig
}

func NewCalculator(fee FeeConfig) (*Calculator, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{fee: fee}, nil
}

func (c *Calculator) Compute(totalAmount int64, organizerRecipientID string) (*Result, error) {
	return Compute(totalAmount, organizerRecipientID, c.fee)
}
