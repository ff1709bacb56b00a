package models

import "time"

// User представляет пациента, зарегистрированного в портале
type User struct {
	CreatedAt         time.Time `json:"createdAt"`         // время создания
	UpdatedAt         time.Time `json:"updatedAt"`         // время последнего обновления
	FullName          *string   `json:"fullName"`          // ФИО
	BirthDate         *string   `json:"birthDate"`         // дата рождения в формате ERP
	Email             *string   `json:"email"`             // email
	PassportSeries    *string   `json:"passportSeries"`    // серия документа
	PassportNumber    *string   `json:"passportNumber"`    // номер документа (последние цифры)
	PassportIssueDate *string   `json:"passportIssueDate"` // дата выдачи документа
	PassportIssuedBy  *string   `json:"passportIssuedBy"`  // кем выдан документ
	OnecID            *string   `json:"onecId"`            // код пациента в 1С
	MedcardNumber     *string   `json:"medcardNumber"`     // номер медкарты
	Gender            *string   `json:"gender"`            // пол
	Phone             string    `json:"phone"`             // телефон, 10 цифр без кода страны
	PasswordHash      string    `json:"-"`                 // bcrypt хеш пароля, клиенту не отдается
	ID                int64     `json:"id"`                // идентификатор в БД
}

// UserProfile содержит изменяемые поля пользователя для upsert.
// nil означает "значение отсутствует": при слиянии такое поле не затирает сохраненное.
type UserProfile struct {
	FullName          *string
	BirthDate         *string
	Email             *string
	PassportSeries    *string
	PassportNumber    *string
	PassportIssueDate *string
	PassportIssuedBy  *string
	OnecID            *string
	MedcardNumber     *string
	Gender            *string
	Phone             string
	PasswordHash      string // пустая строка при слиянии оставляет текущий пароль
}

// MergeRemote дополняет профиль данными из ERP.
// Удаленное значение предпочтительнее локального, локальное предпочтительнее nil.
func (p *UserProfile) MergeRemote(remote *RemoteProfile) {
	if remote == nil {
		return
	}
	p.FullName = Coalesce(remote.FullName, p.FullName)
	p.BirthDate = Coalesce(remote.BirthDate, p.BirthDate)
	p.Gender = Coalesce(remote.Gender, p.Gender)
	p.MedcardNumber = Coalesce(remote.MedcardNumber, p.MedcardNumber)
	p.Email = Coalesce(remote.Email, p.Email)
	p.OnecID = Coalesce(remote.Code, p.OnecID)
}

// ProfileFromUser строит профиль из сохраненного пользователя
func ProfileFromUser(u *User) UserProfile {
	return UserProfile{
		Phone:             u.Phone,
		FullName:          u.FullName,
		BirthDate:         u.BirthDate,
		Email:             u.Email,
		PassportSeries:    u.PassportSeries,
		PassportNumber:    u.PassportNumber,
		PassportIssueDate: u.PassportIssueDate,
		PassportIssuedBy:  u.PassportIssuedBy,
		OnecID:            u.OnecID,
		MedcardNumber:     u.MedcardNumber,
		Gender:            u.Gender,
	}
}

// Coalesce возвращает первое непустое значение
func Coalesce(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

// StringPtr возвращает указатель на строку, nil для пустой
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
