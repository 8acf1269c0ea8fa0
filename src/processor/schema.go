package processor

// Schema 预约数据集的列名映射
type Schema struct {
	Gender         string   `mapstructure:"gender" yaml:"gender"`
	ScheduledDay   string   `mapstructure:"scheduled_day" yaml:"scheduled_day"`
	AppointmentDay string   `mapstructure:"appointment_day" yaml:"appointment_day"`
	Age            string   `mapstructure:"age" yaml:"age"`
	SMSReceived    string   `mapstructure:"sms_received" yaml:"sms_received"`
	NoShow         string   `mapstructure:"no_show" yaml:"no_show"`
	NoShowAliases  []string `mapstructure:"no_show_aliases" yaml:"no_show_aliases"`
	WaitingDays    string   `mapstructure:"waiting_days" yaml:"waiting_days"`
}

// DefaultSchema 公开数据集(Medical Appointment No Shows)的默认列名
func DefaultSchema() Schema {
	return Schema{
		Gender:         "Gender",
		ScheduledDay:   "ScheduledDay",
		AppointmentDay: "AppointmentDay",
		Age:            "Age",
		SMSReceived:    "SMS_received",
		NoShow:         "No_show",
		NoShowAliases:  []string{"No-show"},
		WaitingDays:    "WaitingDays",
	}
}

// WithDefaults 用默认列名补齐未配置的字段
func (s Schema) WithDefaults() Schema {
	d := DefaultSchema()
	if s.Gender == "" {
		s.Gender = d.Gender
	}
	if s.ScheduledDay == "" {
		s.ScheduledDay = d.ScheduledDay
	}
	if s.AppointmentDay == "" {
		s.AppointmentDay = d.AppointmentDay
	}
	if s.Age == "" {
		s.Age = d.Age
	}
	if s.SMSReceived == "" {
		s.SMSReceived = d.SMSReceived
	}
	if s.NoShow == "" {
		s.NoShow = d.NoShow
	}
	if s.NoShowAliases == nil {
		s.NoShowAliases = d.NoShowAliases
	}
	if s.WaitingDays == "" {
		s.WaitingDays = d.WaitingDays
	}
	return s
}

// Required 原始数据必须包含的列(不含no-show标签列，它可能使用别名)
func (s Schema) Required() []string {
	return []string{s.Gender, s.ScheduledDay, s.AppointmentDay, s.Age, s.SMSReceived}
}

// LabelColumns 标签列的全部可接受列名，标准名在前
func (s Schema) LabelColumns() []string {
	return append([]string{s.NoShow}, s.NoShowAliases...)
}
